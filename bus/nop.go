package bus

// Nop is the local-only bus used when no transport is configured or the
// configured one cannot be reached. Publish always fails so callers fall
// back to the offline queue.
type Nop struct{}

func (Nop) Subscribe(int64) error       { return nil }
func (Nop) Unsubscribe(int64) error     { return nil }
func (Nop) Publish(int64, []byte) error { return ErrUnavailable }
func (Nop) OnMessage(Handler)           {}
func (Nop) Close() error                { return nil }
