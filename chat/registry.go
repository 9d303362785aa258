package chat

import (
	"slices"
	"sync"
)

// Conn is a live client connection owned by the transport.
type Conn interface {
	// ID identifies the connection in logs.
	ID() string
	// Send writes one framed payload. It is safe for concurrent use.
	Send(payload []byte) error
}

// Registry maps user ids to the connection they are logged in on in this
// process. Every method holds the lock only for the map access itself;
// callers perform I/O on the returned connections after it is released.
type Registry struct {
	mu    sync.Mutex
	conns map[int64]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]Conn)}
}

// Add records conn for id and returns the connection it displaced, if any.
func (r *Registry) Add(id int64, conn Conn) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.conns[id]
	r.conns[id] = conn
	return prev, ok
}

func (r *Registry) Lookup(id int64) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return conn, ok
}

func (r *Registry) Remove(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	return ok
}

// RemoveIfConn deletes the entry for id only while it is held by conn.
func (r *Registry) RemoveIfConn(id int64, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; !ok || c != conn {
		return false
	}
	delete(r.conns, id)
	return true
}

// RemoveConn deletes every entry held by conn and returns their ids in
// ascending order. The transport only knows the connection when it closes,
// so this scans the map.
func (r *Registry) RemoveConn(conn Conn) []int64 {
	r.mu.Lock()
	var ids []int64
	for id, c := range r.conns {
		if c == conn {
			delete(r.conns, id)
			ids = append(ids, id)
		}
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// IDs returns the locally connected user ids in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}
