package bus

import (
	"fmt"
	"log"
	"sync"
	"time"

	zmq "github.com/pebbe/zmq4"
)

const zmqPollInterval = 100 * time.Millisecond

type zmqSubOp struct {
	topic string
	add   bool
}

// ZMQ is a Bus over a ZeroMQ XSUB/XPUB forwarder (see cmd/busproxy). Each
// instance connects a PUB socket to the forwarder frontend and a SUB socket
// to its backend. The SUB socket is owned by the receive goroutine; topic
// changes are handed to it through ops.
type ZMQ struct {
	pubMu sync.Mutex
	pub   *zmq.Socket
	sub   *zmq.Socket

	ops chan zmqSubOp

	mu      sync.Mutex
	handler Handler

	quit chan struct{}
	done chan struct{}
}

func DialZMQ(pubAddr, subAddr string) (*ZMQ, error) {
	pub, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, fmt.Errorf("create pub socket: %w", err)
	}
	pub.SetLinger(0)
	if err := pub.Connect(pubAddr); err != nil {
		pub.Close()
		return nil, fmt.Errorf("connect pub %s: %w", pubAddr, err)
	}

	sub, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("create sub socket: %w", err)
	}
	sub.SetLinger(0)
	if err := sub.Connect(subAddr); err != nil {
		pub.Close()
		sub.Close()
		return nil, fmt.Errorf("connect sub %s: %w", subAddr, err)
	}

	b := &ZMQ{
		pub:  pub,
		sub:  sub,
		ops:  make(chan zmqSubOp, 1024),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go b.run()

	log.Printf("bus: zmq publishing to %s, subscribed via %s", pubAddr, subAddr)
	return b, nil
}

func (b *ZMQ) OnMessage(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

func (b *ZMQ) Subscribe(userID int64) error {
	return b.queue(zmqSubOp{topic: Topic(userID), add: true})
}

func (b *ZMQ) Unsubscribe(userID int64) error {
	return b.queue(zmqSubOp{topic: Topic(userID), add: false})
}

func (b *ZMQ) queue(op zmqSubOp) error {
	select {
	case <-b.quit:
		return ErrUnavailable
	case b.ops <- op:
		return nil
	}
}

func (b *ZMQ) Publish(userID int64, payload []byte) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if b.pub == nil {
		return ErrUnavailable
	}
	if _, err := b.pub.SendMessage(Topic(userID), payload); err != nil {
		return fmt.Errorf("publish %d: %w", userID, err)
	}
	return nil
}

func (b *ZMQ) run() {
	defer close(b.done)
	defer b.sub.Close()

	poller := zmq.NewPoller()
	poller.Add(b.sub, zmq.POLLIN)

	for {
		select {
		case <-b.quit:
			return
		default:
		}

		b.applyOps()

		polled, err := poller.Poll(zmqPollInterval)
		if err != nil {
			if zmq.AsErrno(err) == zmq.ETERM {
				return
			}
			log.Printf("bus: zmq poll: %v", err)
			time.Sleep(zmqPollInterval)
			continue
		}
		if len(polled) == 0 {
			continue
		}

		parts, err := b.sub.RecvMessageBytes(zmq.DONTWAIT)
		if err != nil {
			continue
		}
		if len(parts) != 2 {
			log.Printf("bus: dropping zmq message with %d frames", len(parts))
			continue
		}
		userID, err := ParseTopic(string(parts[0]))
		if err != nil {
			log.Printf("bus: dropping message: %v", err)
			continue
		}

		b.mu.Lock()
		h := b.handler
		b.mu.Unlock()
		if h != nil {
			h(userID, parts[1])
		}
	}
}

func (b *ZMQ) applyOps() {
	for {
		select {
		case op := <-b.ops:
			var err error
			if op.add {
				err = b.sub.SetSubscribe(op.topic)
			} else {
				err = b.sub.SetUnsubscribe(op.topic)
			}
			if err != nil {
				log.Printf("bus: zmq topic %q: %v", op.topic, err)
			}
		default:
			return
		}
	}
}

func (b *ZMQ) Close() error {
	close(b.quit)
	<-b.done

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	err := b.pub.Close()
	b.pub = nil
	return err
}

// Proxy runs the forwarder that ZMQ instances share: instances publish to
// frontend and subscribe through backend. It blocks until the sockets fail.
func Proxy(frontend, backend string) error {
	xsub, err := zmq.NewSocket(zmq.XSUB)
	if err != nil {
		return err
	}
	defer xsub.Close()
	if err := xsub.Bind(frontend); err != nil {
		return fmt.Errorf("bind frontend %s: %w", frontend, err)
	}

	xpub, err := zmq.NewSocket(zmq.XPUB)
	if err != nil {
		return err
	}
	defer xpub.Close()
	if err := xpub.Bind(backend); err != nil {
		return fmt.Errorf("bind backend %s: %w", backend, err)
	}

	log.Printf("bus: zmq forwarder %s -> %s", frontend, backend)
	return zmq.Proxy(xsub, xpub, nil)
}
