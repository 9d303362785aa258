package bus

import (
	"errors"
	"testing"
)

func TestSubjectRoundTrip(t *testing.T) {
	for _, id := range []int64{1, 22, 220, 9007199254740993} {
		got, err := ParseSubject(Subject(id))
		if err != nil {
			t.Fatalf("ParseSubject(%q): %v", Subject(id), err)
		}
		if got != id {
			t.Errorf("ParseSubject(Subject(%d)) = %d", id, got)
		}
	}

	if _, err := ParseSubject("presence.update"); err == nil {
		t.Error("expected error for foreign subject")
	}
	if _, err := ParseSubject("chat.user.abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestTopicDoesNotPrefixOtherUsers(t *testing.T) {
	a, b := Topic(22), Topic(220)
	if len(b) >= len(a) && b[:len(a)] == a {
		t.Errorf("topic %q is a prefix of %q", a, b)
	}

	got, err := ParseTopic(Topic(220))
	if err != nil || got != 220 {
		t.Errorf("ParseTopic = (%d, %v), want 220", got, err)
	}
	if _, err := ParseTopic("220"); err == nil {
		t.Error("expected error for topic without separator")
	}
}

func TestNopIsLocalOnly(t *testing.T) {
	var b Bus = Nop{}
	if err := b.Subscribe(1); err != nil {
		t.Errorf("Subscribe: %v", err)
	}
	if err := b.Publish(1, []byte("x")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Publish error = %v, want ErrUnavailable", err)
	}
	if err := b.Unsubscribe(1); err != nil {
		t.Errorf("Unsubscribe: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
