// Package chat implements the chat service core: message dispatch, the
// per-process session registry, presence lifecycle and the tiered delivery
// of one-to-one and group messages across server instances.
package chat

import (
	"context"
	"log"
	"time"

	"chatd/bus"
	"chatd/models"
	"chatd/protocol"
)

type UserStore interface {
	CreateUser(ctx context.Context, name, password string) (int64, error)
	Authenticate(ctx context.Context, id int64, password string) (models.User, bool, error)
	GetState(ctx context.Context, id int64) (models.State, error)
	MarkOnline(ctx context.Context, id int64) (bool, error)
	MarkOffline(ctx context.Context, id int64) error
	ResetState(ctx context.Context) (int64, error)
}

type FriendStore interface {
	AddFriend(ctx context.Context, userID, friendID int64) error
	Friends(ctx context.Context, userID int64) ([]models.User, error)
}

type GroupStore interface {
	CreateGroup(ctx context.Context, name, desc string) (int64, error)
	DeleteGroup(ctx context.Context, groupID int64) error
	AddMember(ctx context.Context, groupID, userID int64, role models.Role) error
	GroupsOf(ctx context.Context, userID int64) ([]models.Group, error)
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
}

type OfflineStore interface {
	Enqueue(ctx context.Context, userID int64, payload string) error
	Take(ctx context.Context, userID int64) ([]string, error)
}

// Store is satisfied by a single backend serving every gateway.
type Store interface {
	UserStore
	FriendStore
	GroupStore
	OfflineStore
}

// Gateways groups the persistence interfaces the service depends on.
type Gateways struct {
	Users   UserStore
	Friends FriendStore
	Groups  GroupStore
	Offline OfflineStore
}

func GatewaysFrom(s Store) Gateways {
	return Gateways{Users: s, Friends: s, Groups: s, Offline: s}
}

// Service owns the session registry and routes messages between local
// connections, the presence bus and the offline queue.
type Service struct {
	users   UserStore
	friends FriendStore
	groups  GroupStore
	offline OfflineStore
	bus     bus.Bus

	registry   *Registry
	dispatcher *Dispatcher
}

// New builds a service and installs its bus callback. A nil bus runs the
// service in local-only mode.
func New(g Gateways, b bus.Bus) *Service {
	if b == nil {
		b = bus.Nop{}
	}

	s := &Service{
		users:    g.Users,
		friends:  g.Friends,
		groups:   g.Groups,
		offline:  g.Offline,
		bus:      b,
		registry: NewRegistry(),
	}

	d := NewDispatcher()
	d.Register(protocol.KindLogin, handle(s.handleLogin))
	d.Register(protocol.KindLogout, handle(s.handleLogout))
	d.Register(protocol.KindRegister, handle(s.handleRegister))
	d.Register(protocol.KindOneToOneChat, handle(s.handleOneToOneChat))
	d.Register(protocol.KindAddFriend, handle(s.handleAddFriend))
	d.Register(protocol.KindCreateGroup, handle(s.handleCreateGroup))
	d.Register(protocol.KindJoinGroup, handle(s.handleJoinGroup))
	d.Register(protocol.KindGroupChat, handle(s.handleGroupChat))
	s.dispatcher = d

	b.OnMessage(s.deliverFromBus)
	return s
}

func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// Dispatch hands a decoded message to its handler.
func (s *Service) Dispatch(ctx context.Context, conn Conn, msg protocol.Message, at time.Time) {
	s.dispatcher.Dispatch(ctx, conn, msg, at)
}

// Reset forces every user persisted as online to offline, whatever this
// process's registry holds. It runs on controlled shutdown so users whose
// sessions died with a previous process do not stay online.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	n, err := s.users.ResetState(ctx)
	if err != nil {
		return 0, wrap(CodePersistence, "reset user state", err)
	}
	log.Printf("reset: %d users marked offline", n)
	return n, nil
}

type Stats struct {
	Connections  int
	Users        []int64
	Unrecognized int64
}

func (s *Service) Stats() Stats {
	ids := s.registry.IDs()
	return Stats{
		Connections:  len(ids),
		Users:        ids,
		Unrecognized: s.dispatcher.Unrecognized(),
	}
}

func (s *Service) reply(conn Conn, msg protocol.Message) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("[%s] encode %s: %v", conn.ID(), msg.Kind(), err)
		return
	}
	if err := conn.Send(payload); err != nil {
		log.Printf("[%s] send %s: %v", conn.ID(), msg.Kind(), err)
	}
}
