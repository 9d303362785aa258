package chat

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"chatd/protocol"
)

// Handler processes one decoded message received on conn at the given time.
// Outcomes are reported by writing responses to connections.
type Handler func(ctx context.Context, conn Conn, msg protocol.Message, at time.Time)

// Dispatcher maps message kinds to handlers. Handlers are registered during
// construction; the map is read-only once dispatching starts.
type Dispatcher struct {
	handlers     map[protocol.Kind]Handler
	unrecognized atomic.Int64
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[protocol.Kind]Handler)}
}

// Register binds kind to h. Registering a kind twice is a programming error.
func (d *Dispatcher) Register(kind protocol.Kind, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("chat: nil handler for %s", kind))
	}
	if _, dup := d.handlers[kind]; dup {
		panic(fmt.Sprintf("chat: duplicate handler for %s", kind))
	}
	d.handlers[kind] = h
}

// Handler returns the handler for kind, or a handler that only logs.
func (d *Dispatcher) Handler(kind protocol.Kind) Handler {
	if h, ok := d.handlers[kind]; ok {
		return h
	}
	return d.unknown
}

func (d *Dispatcher) Dispatch(ctx context.Context, conn Conn, msg protocol.Message, at time.Time) {
	d.Handler(msg.Kind())(ctx, conn, msg, at)
}

// Unrecognized reports how many messages had no registered handler.
func (d *Dispatcher) Unrecognized() int64 {
	return d.unrecognized.Load()
}

func (d *Dispatcher) unknown(_ context.Context, conn Conn, msg protocol.Message, _ time.Time) {
	d.unrecognized.Add(1)
	log.Printf("[%s] msgid %d %v", conn.ID(), int(msg.Kind()), ErrNotFound)
}

// handle adapts a typed handler to the dispatcher signature.
func handle[T protocol.Message](fn func(ctx context.Context, conn Conn, msg T, at time.Time)) Handler {
	return func(ctx context.Context, conn Conn, msg protocol.Message, at time.Time) {
		m, ok := msg.(T)
		if !ok {
			log.Printf("[%s] %s delivered as %T", conn.ID(), msg.Kind(), msg)
			return
		}
		fn(ctx, conn, m, at)
	}
}
