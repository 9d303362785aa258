package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"chatd/bus"
	"chatd/models"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory Store that counts the calls the routing tests
// care about.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*models.User
	friends map[int64][]int64
	groups  map[int64]*models.Group
	queue   map[int64][]string

	enqueues   int
	stateReads int
	addMembers int

	failCreateUser bool
	failAddMember  bool
	failEnqueueFor map[int64]bool
}

func newMemStore() *memStore {
	return &memStore{
		nextID:         21,
		users:          make(map[int64]*models.User),
		friends:        make(map[int64][]int64),
		groups:         make(map[int64]*models.Group),
		queue:          make(map[int64][]string),
		failEnqueueFor: make(map[int64]bool),
	}
}

func (m *memStore) CreateUser(_ context.Context, name, password string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateUser {
		return 0, errStoreDown
	}
	for _, u := range m.users {
		if u.Name == name {
			return 0, fmt.Errorf("name %q taken", name)
		}
	}
	m.nextID++
	m.users[m.nextID] = &models.User{ID: m.nextID, Name: name, Password: password, State: models.Offline}
	return m.nextID, nil
}

func (m *memStore) Authenticate(_ context.Context, id int64, password string) (models.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Password != password {
		return models.User{}, false, nil
	}
	return *u, true, nil
}

func (m *memStore) GetState(_ context.Context, id int64) (models.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateReads++
	u, ok := m.users[id]
	if !ok {
		return models.Offline, errors.New("not found")
	}
	return u.State, nil
}

func (m *memStore) MarkOnline(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.State == models.Online {
		return false, nil
	}
	u.State = models.Online
	return true, nil
}

func (m *memStore) MarkOffline(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.State = models.Offline
	}
	return nil
}

func (m *memStore) ResetState(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.users {
		if u.State == models.Online {
			u.State = models.Offline
			n++
		}
	}
	return n, nil
}

func (m *memStore) AddFriend(_ context.Context, userID, friendID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.friends[userID], friendID) {
		return errors.New("duplicate friend")
	}
	m.friends[userID] = append(m.friends[userID], friendID)
	return nil
}

func (m *memStore) Friends(_ context.Context, userID int64) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range m.friends[userID] {
		if u, ok := m.users[id]; ok {
			out = append(out, models.User{ID: u.ID, Name: u.Name, State: u.State})
		}
	}
	return out, nil
}

func (m *memStore) CreateGroup(_ context.Context, name, desc string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.groups {
		if g.Name == name {
			return 0, fmt.Errorf("group %q exists", name)
		}
	}
	id := int64(len(m.groups) + 1)
	m.groups[id] = &models.Group{ID: id, Name: name, Desc: desc}
	return id, nil
}

func (m *memStore) DeleteGroup(_ context.Context, groupID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, groupID)
	return nil
}

func (m *memStore) AddMember(_ context.Context, groupID, userID int64, role models.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addMembers++
	if m.failAddMember {
		return errStoreDown
	}
	g, ok := m.groups[groupID]
	if !ok {
		return errors.New("no such group")
	}
	u := m.users[userID]
	member := models.GroupMember{Role: role}
	if u != nil {
		member.User = models.User{ID: u.ID, Name: u.Name, State: u.State}
	} else {
		member.ID = userID
	}
	g.Members = append(g.Members, member)
	return nil
}

func (m *memStore) GroupsOf(_ context.Context, userID int64) ([]models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Group
	for _, g := range m.groups {
		for _, mem := range g.Members {
			if mem.ID == userID {
				out = append(out, *g)
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) MemberIDs(_ context.Context, groupID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, nil
	}
	ids := make([]int64, 0, len(g.Members))
	for _, mem := range g.Members {
		ids = append(ids, mem.ID)
	}
	return ids, nil
}

func (m *memStore) Enqueue(_ context.Context, userID int64, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEnqueueFor[userID] {
		return errStoreDown
	}
	m.enqueues++
	m.queue[userID] = append(m.queue[userID], payload)
	return nil
}

func (m *memStore) Take(_ context.Context, userID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.queue[userID]
	delete(m.queue, userID)
	return msgs, nil
}

func (m *memStore) state(id int64) models.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].State
}

func (m *memStore) setState(id int64, state models.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].State = state
}

func (m *memStore) queued(id int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queue[id])
}

func (m *memStore) counts() (enqueues, stateReads int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueues, m.stateReads
}

type published struct {
	userID  int64
	payload string
}

// fakeBus records control- and data-plane calls.
type fakeBus struct {
	mu          sync.Mutex
	subscribed  map[int64]bool
	published   []published
	handler     bus.Handler
	failPublish bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{subscribed: make(map[int64]bool)}
}

func (b *fakeBus) Subscribe(id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribed[id] = true
	return nil
}

func (b *fakeBus) Unsubscribe(id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribed, id)
	return nil
}

func (b *fakeBus) Publish(id int64, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPublish {
		return bus.ErrUnavailable
	}
	b.published = append(b.published, published{id, string(payload)})
	return nil
}

func (b *fakeBus) OnMessage(h bus.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) isSubscribed(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed[id]
}

func (b *fakeBus) publishes() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.published)
}

// inject simulates a payload arriving from another process.
func (b *fakeBus) inject(id int64, payload string) {
	b.mu.Lock()
	h := b.handler
	b.mu.Unlock()
	h(id, []byte(payload))
}

type fakeConn struct {
	id string

	mu       sync.Mutex
	sent     []string
	sendFail bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendFail {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, string(payload))
	return nil
}

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}
