package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"chatd/models"
	"chatd/protocol"
)

// Login authenticates id and moves it online in this process: the online
// claim is persisted, the registry entry is added and the bus subscription
// is made. The returned ack carries the drained offline queue and the
// friend and group snapshot.
//
// A user already persisted as online yields ErrConflict with nothing
// changed, whichever process holds the other session.
func (s *Service) Login(ctx context.Context, conn Conn, id int64, password string) (protocol.LoginAck, error) {
	user, ok, err := s.users.Authenticate(ctx, id, password)
	if err != nil {
		return protocol.LoginAck{}, wrap(CodePersistence, "authenticate", err)
	}
	if !ok {
		return protocol.LoginAck{}, ErrAuth
	}
	if user.State == models.Online {
		return protocol.LoginAck{}, ErrConflict
	}

	claimed, err := s.users.MarkOnline(ctx, id)
	if err != nil {
		return protocol.LoginAck{}, wrap(CodePersistence, "mark online", err)
	}
	if !claimed {
		// lost a race with a concurrent login for the same id
		return protocol.LoginAck{}, ErrConflict
	}

	if prev, replaced := s.registry.Add(id, conn); replaced && prev != conn {
		log.Printf("[%s] user %d replaces stale registry entry %s", conn.ID(), id, prev.ID())
	}
	if err := s.bus.Subscribe(id); err != nil {
		log.Printf("[%s] bus subscribe %d: %v", conn.ID(), id, err)
	}
	log.Printf("[%s] user %d logged in", conn.ID(), id)

	ack := protocol.LoginAck{
		Errno: protocol.LoginOK,
		ID:    user.ID,
		Name:  user.Name,
	}

	queued, err := s.offline.Take(ctx, id)
	if err != nil {
		log.Printf("[%s] take offline messages for %d: %v", conn.ID(), id, err)
	}
	ack.OfflineMsg = queued

	friends, err := s.friends.Friends(ctx, id)
	if err != nil {
		log.Printf("[%s] load friends of %d: %v", conn.ID(), id, err)
	}
	for _, f := range friends {
		ack.Friends = append(ack.Friends, protocol.FriendInfo{ID: f.ID, Name: f.Name, State: string(f.State)})
	}

	groups, err := s.groups.GroupsOf(ctx, id)
	if err != nil {
		log.Printf("[%s] load groups of %d: %v", conn.ID(), id, err)
	}
	for _, g := range groups {
		info := protocol.GroupInfo{ID: g.ID, GroupName: g.Name, GroupDesc: g.Desc}
		for _, m := range g.Members {
			info.Users = append(info.Users, protocol.MemberInfo{
				ID:    m.ID,
				Name:  m.Name,
				State: string(m.State),
				Role:  string(m.Role),
			})
		}
		ack.Groups = append(ack.Groups, info)
	}

	return ack, nil
}

// Logout takes id offline. It is a no-op for a user that is already offline.
func (s *Service) Logout(ctx context.Context, id int64) error {
	if s.registry.Remove(id) {
		log.Printf("user %d logged out", id)
	}
	return s.goOffline(ctx, id)
}

// ConnectionClosed runs when the transport loses conn without a logout.
// Every user bound to conn goes offline; their ids are returned.
func (s *Service) ConnectionClosed(ctx context.Context, conn Conn) []int64 {
	ids := s.registry.RemoveConn(conn)
	for _, id := range ids {
		log.Printf("[%s] user %d disconnected", conn.ID(), id)
		if err := s.goOffline(ctx, id); err != nil {
			log.Printf("[%s] %v", conn.ID(), err)
		}
	}
	return ids
}

func (s *Service) goOffline(ctx context.Context, id int64) error {
	if err := s.bus.Unsubscribe(id); err != nil {
		log.Printf("bus unsubscribe %d: %v", id, err)
	}
	if err := s.users.MarkOffline(ctx, id); err != nil {
		return wrap(CodePersistence, "mark offline", err)
	}
	return nil
}

// Register creates a user and returns its id.
func (s *Service) Register(ctx context.Context, name, password string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" || password == "" {
		return 0, wrap(CodeInvalid, "register", errors.New("name and password are required"))
	}

	id, err := s.users.CreateUser(ctx, name, password)
	if err != nil {
		return 0, wrap(CodePersistence, "create user", err)
	}
	log.Printf("registered user %d (%s)", id, name)
	return id, nil
}

func (s *Service) handleLogin(ctx context.Context, conn Conn, msg protocol.Login, _ time.Time) {
	ack, err := s.Login(ctx, conn, msg.ID, msg.Password)
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict):
		ack = protocol.LoginAck{Errno: protocol.LoginConflict, Errmsg: ErrConflict.Message}
	case errors.Is(err, ErrAuth):
		ack = protocol.LoginAck{Errno: protocol.LoginInvalid, Errmsg: ErrAuth.Message}
	default:
		log.Printf("[%s] login %d: %v", conn.ID(), msg.ID, err)
		ack = protocol.LoginAck{Errno: protocol.LoginInvalid, Errmsg: "login failed, try again later"}
	}
	s.reply(conn, ack)
}

func (s *Service) handleLogout(ctx context.Context, conn Conn, msg protocol.Logout, _ time.Time) {
	if !s.registry.RemoveIfConn(msg.ID, conn) {
		log.Printf("[%s] logout %d ignored: user is not logged in on this connection", conn.ID(), msg.ID)
		return
	}
	log.Printf("[%s] user %d logged out", conn.ID(), msg.ID)
	if err := s.goOffline(ctx, msg.ID); err != nil {
		log.Printf("[%s] logout %d: %v", conn.ID(), msg.ID, err)
	}
}

func (s *Service) handleRegister(ctx context.Context, conn Conn, msg protocol.Register, _ time.Time) {
	id, err := s.Register(ctx, msg.Name, msg.Password)
	if err != nil {
		log.Printf("[%s] register: %v", conn.ID(), err)
		errmsg := "register failed"
		if errors.Is(err, ErrInvalid) {
			errmsg = "name and password are required"
		}
		s.reply(conn, protocol.RegisterAck{Errno: protocol.RegisterFailed, Errmsg: errmsg})
		return
	}
	s.reply(conn, protocol.RegisterAck{Errno: protocol.RegisterOK, ID: id})
}
