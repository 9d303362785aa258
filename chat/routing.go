package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chatd/models"
	"chatd/protocol"
)

// Tier is the delivery strategy that accepted a message.
type Tier int

const (
	TierLocal Tier = iota + 1
	TierRemote
	TierOffline
)

func (t Tier) String() string {
	switch t {
	case TierLocal:
		return "local"
	case TierRemote:
		return "remote"
	case TierOffline:
		return "offline"
	default:
		return "none"
	}
}

// Route delivers payload to user to, trying in order: the user's connection
// in this process, the presence bus when the user is persisted as online
// elsewhere, and finally the user's offline queue. Only the local tier
// confirms delivery; a failed local write or bus publish falls through to
// the offline queue.
func (s *Service) Route(ctx context.Context, to int64, payload []byte) (Tier, error) {
	if conn, ok := s.registry.Lookup(to); ok {
		err := conn.Send(payload)
		if err == nil {
			return TierLocal, nil
		}
		log.Printf("[%s] local delivery to %d failed, queueing: %v", conn.ID(), to, err)
		return TierOffline, s.enqueue(ctx, to, payload)
	}

	state, err := s.users.GetState(ctx, to)
	if err != nil {
		log.Printf("route %d: read presence: %v", to, err)
		state = models.Offline
	}
	if state == models.Online {
		err := s.publish(to, payload)
		if err == nil {
			return TierRemote, nil
		}
		log.Printf("route %d: %v, queueing", to, err)
	}

	return TierOffline, s.enqueue(ctx, to, payload)
}

func (s *Service) publish(to int64, payload []byte) error {
	if err := s.bus.Publish(to, payload); err != nil {
		return wrap(CodeBusUnavailable, fmt.Sprintf("publish to %d", to), err)
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, to int64, payload []byte) error {
	if err := s.offline.Enqueue(ctx, to, string(payload)); err != nil {
		return wrap(CodePersistence, fmt.Sprintf("queue offline message for %d", to), err)
	}
	return nil
}

// FanOut routes payload to every member of groupID independently, the
// sender included. A failure for one member does not stop the others and
// nothing already delivered is undone; the failures are joined.
func (s *Service) FanOut(ctx context.Context, groupID int64, payload []byte) (map[Tier]int, error) {
	members, err := s.groups.MemberIDs(ctx, groupID)
	if err != nil {
		return nil, wrap(CodePersistence, fmt.Sprintf("members of group %d", groupID), err)
	}

	tiers := make(map[Tier]int, 3)
	var errs []error
	for _, id := range members {
		tier, err := s.Route(ctx, id, payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tiers[tier]++
	}
	return tiers, errors.Join(errs...)
}

// deliverFromBus handles a payload another process published for userID.
// The user may have left this process since subscribing; the payload then
// goes to the offline queue instead of being dropped.
func (s *Service) deliverFromBus(userID int64, payload []byte) {
	if conn, ok := s.registry.Lookup(userID); ok {
		err := conn.Send(payload)
		if err == nil {
			return
		}
		log.Printf("[%s] bus delivery to %d failed, queueing: %v", conn.ID(), userID, err)
	} else {
		log.Printf("bus delivery: user %d no longer connected here, queueing", userID)
	}

	if err := s.enqueue(context.Background(), userID, payload); err != nil {
		log.Printf("bus delivery: %v", err)
	}
}

func (s *Service) handleOneToOneChat(ctx context.Context, conn Conn, msg protocol.OneToOneChat, _ time.Time) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("[%s] encode chat: %v", conn.ID(), err)
		return
	}

	tier, err := s.Route(ctx, msg.To, payload)
	if err != nil {
		log.Printf("[%s] chat %d -> %d: %v", conn.ID(), msg.ID, msg.To, err)
		return
	}
	log.Printf("[%s] chat %d -> %d delivered via %s", conn.ID(), msg.ID, msg.To, tier)
}

func (s *Service) handleGroupChat(ctx context.Context, conn Conn, msg protocol.GroupChat, _ time.Time) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("[%s] encode group chat: %v", conn.ID(), err)
		return
	}

	tiers, err := s.FanOut(ctx, msg.GroupID, payload)
	if err != nil {
		log.Printf("[%s] group chat %d -> group %d: %v", conn.ID(), msg.ID, msg.GroupID, err)
	}
	log.Printf("[%s] group chat %d -> group %d: local=%d remote=%d offline=%d",
		conn.ID(), msg.ID, msg.GroupID, tiers[TierLocal], tiers[TierRemote], tiers[TierOffline])
}
