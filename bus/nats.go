package bus

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS is a Bus backed by a NATS server. All subscriptions feed one channel
// drained by a single goroutine, so the handler never runs concurrently
// with itself.
type NATS struct {
	conn  *nats.Conn
	inbox chan *nats.Msg

	mu      sync.Mutex
	subs    map[int64]*nats.Subscription
	handler Handler

	quit chan struct{}
	done chan struct{}
}

func DialNATS(url string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("chatd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("bus: disconnected from nats: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("bus: reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}

	b := &NATS{
		conn:  nc,
		inbox: make(chan *nats.Msg, 1024),
		subs:  make(map[int64]*nats.Subscription),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go b.deliver()

	log.Printf("bus: connected to nats at %s", nc.ConnectedUrl())
	return b, nil
}

func (b *NATS) OnMessage(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

func (b *NATS) Subscribe(userID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[userID]; ok {
		return nil
	}
	sub, err := b.conn.ChanSubscribe(Subject(userID), b.inbox)
	if err != nil {
		return fmt.Errorf("subscribe %d: %w", userID, err)
	}
	b.subs[userID] = sub
	return nil
}

func (b *NATS) Unsubscribe(userID int64) error {
	b.mu.Lock()
	sub, ok := b.subs[userID]
	delete(b.subs, userID)
	b.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %d: %w", userID, err)
	}
	return nil
}

func (b *NATS) Publish(userID int64, payload []byte) error {
	if err := b.conn.Publish(Subject(userID), payload); err != nil {
		return fmt.Errorf("publish %d: %w", userID, err)
	}
	return nil
}

func (b *NATS) deliver() {
	defer close(b.done)
	for {
		select {
		case <-b.quit:
			return
		case msg := <-b.inbox:
			userID, err := ParseSubject(msg.Subject)
			if err != nil {
				log.Printf("bus: dropping message: %v", err)
				continue
			}

			b.mu.Lock()
			h := b.handler
			b.mu.Unlock()
			if h != nil {
				h(userID, msg.Data)
			}
		}
	}
}

func (b *NATS) Close() error {
	b.conn.Close()
	close(b.quit)
	<-b.done
	return nil
}
