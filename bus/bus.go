// Package bus carries chat payloads between server instances. Each instance
// subscribes under the ids of the users connected to it and publishes to the
// ids of users connected elsewhere. Delivery is best effort: subscription
// changes and publishes are independent calls with no acknowledgement.
package bus

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnavailable = errors.New("presence bus unavailable")

// Handler receives a payload addressed to userID.
type Handler func(userID int64, payload []byte)

// Bus is the presence bus client used by the chat service.
type Bus interface {
	Subscribe(userID int64) error
	Unsubscribe(userID int64) error
	Publish(userID int64, payload []byte) error
	// OnMessage installs the inbound handler. Call it before the first Subscribe.
	OnMessage(h Handler)
	Close() error
}

const subjectPrefix = "chat.user."

// Subject is the NATS subject a user's payloads travel on.
func Subject(userID int64) string {
	return subjectPrefix + strconv.FormatInt(userID, 10)
}

// ParseSubject extracts the user id from a subject built by Subject.
func ParseSubject(subject string) (int64, error) {
	raw, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok {
		return 0, fmt.Errorf("unexpected subject %q", subject)
	}
	return strconv.ParseInt(raw, 10, 64)
}

// Topic is the ZeroMQ topic frame for a user. The trailing separator keeps
// prefix matching from confusing user 22 with user 220.
func Topic(userID int64) string {
	return strconv.FormatInt(userID, 10) + ":"
}

func ParseTopic(topic string) (int64, error) {
	raw, ok := strings.CutSuffix(topic, ":")
	if !ok {
		return 0, fmt.Errorf("unexpected topic %q", topic)
	}
	return strconv.ParseInt(raw, 10, 64)
}
