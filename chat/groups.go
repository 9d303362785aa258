package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	"chatd/models"
	"chatd/protocol"
)

// AddFriend records a directed edge from id to friendID. Duplicate edges are
// left to the store's uniqueness rules.
func (s *Service) AddFriend(ctx context.Context, id, friendID int64) error {
	if err := s.friends.AddFriend(ctx, id, friendID); err != nil {
		return wrap(CodePersistence, fmt.Sprintf("add friend %d -> %d", id, friendID), err)
	}
	return nil
}

// CreateGroup creates a group with creatorID as its creator. If the creator
// cannot be added the group is deleted again so no group exists without one.
func (s *Service) CreateGroup(ctx context.Context, creatorID int64, name, desc string) (int64, error) {
	groupID, err := s.groups.CreateGroup(ctx, name, desc)
	if err != nil {
		return 0, wrap(CodePersistence, "create group", err)
	}

	if err := s.groups.AddMember(ctx, groupID, creatorID, models.RoleCreator); err != nil {
		if derr := s.groups.DeleteGroup(ctx, groupID); derr != nil {
			log.Printf("group %d left without creator: %v", groupID, derr)
		}
		return 0, wrap(CodePersistence, fmt.Sprintf("add creator %d to group %d", creatorID, groupID), err)
	}
	return groupID, nil
}

// JoinGroup adds id to groupID as a normal member.
func (s *Service) JoinGroup(ctx context.Context, id, groupID int64) error {
	if err := s.groups.AddMember(ctx, groupID, id, models.RoleNormal); err != nil {
		return wrap(CodePersistence, fmt.Sprintf("join group %d as %d", groupID, id), err)
	}
	return nil
}

func (s *Service) handleAddFriend(ctx context.Context, conn Conn, msg protocol.AddFriend, _ time.Time) {
	if err := s.AddFriend(ctx, msg.ID, msg.FriendID); err != nil {
		log.Printf("[%s] %v", conn.ID(), err)
	}
}

func (s *Service) handleCreateGroup(ctx context.Context, conn Conn, msg protocol.CreateGroup, _ time.Time) {
	groupID, err := s.CreateGroup(ctx, msg.ID, msg.GroupName, msg.GroupDesc)
	if err != nil {
		log.Printf("[%s] %v", conn.ID(), err)
		return
	}
	log.Printf("[%s] user %d created group %d (%s)", conn.ID(), msg.ID, groupID, msg.GroupName)
}

func (s *Service) handleJoinGroup(ctx context.Context, conn Conn, msg protocol.JoinGroup, _ time.Time) {
	if err := s.JoinGroup(ctx, msg.ID, msg.GroupID); err != nil {
		log.Printf("[%s] %v", conn.ID(), err)
	}
}
