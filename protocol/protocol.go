// Package protocol defines the chat wire schema: one JSON object per line,
// discriminated by the integer msgid field. Inbound lines are decoded once
// into a concrete message type per kind so handlers never look fields up by name.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidPacket = errors.New("invalid packet format")
	ErrMissingKind   = errors.New("missing msgid")
	ErrMissingField  = errors.New("missing required field")
)

// Kind is the msgid discriminator carried by every message.
type Kind int

const (
	KindLogin        Kind = 1
	KindLoginAck     Kind = 2
	KindLogout       Kind = 3
	KindRegister     Kind = 4
	KindRegisterAck  Kind = 5
	KindOneToOneChat Kind = 6
	KindGroupChat    Kind = 7
	KindAddFriend    Kind = 8
	KindCreateGroup  Kind = 10
	KindJoinGroup    Kind = 11
)

func (k Kind) String() string {
	switch k {
	case KindLogin:
		return "LOGIN"
	case KindLoginAck:
		return "LOGIN_ACK"
	case KindLogout:
		return "LOGOUT"
	case KindRegister:
		return "REGISTER"
	case KindRegisterAck:
		return "REGISTER_ACK"
	case KindOneToOneChat:
		return "ONE_TO_ONE_CHAT"
	case KindGroupChat:
		return "GROUP_CHAT"
	case KindAddFriend:
		return "ADD_FRIEND"
	case KindCreateGroup:
		return "CREATE_GROUP"
	case KindJoinGroup:
		return "JOIN_GROUP"
	default:
		return fmt.Sprintf("KIND(%d)", int(k))
	}
}

// Message is implemented by every decoded variant.
type Message interface {
	Kind() Kind
}

type Login struct {
	ID       int64  `json:"id"`
	Password string `json:"password"`
}

type Logout struct {
	ID int64 `json:"id"`
}

type Register struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// OneToOneChat is relayed to the recipient exactly as received; Raw holds the
// original line.
type OneToOneChat struct {
	ID   int64  `json:"id"`
	From string `json:"from,omitempty"`
	To   int64  `json:"toid"`
	Body string `json:"msg"`
	Time string `json:"time,omitempty"`
	Raw  []byte `json:"-"`
}

type GroupChat struct {
	ID      int64  `json:"id"`
	From    string `json:"from,omitempty"`
	GroupID int64  `json:"groupid"`
	Body    string `json:"msg"`
	Time    string `json:"time,omitempty"`
	Raw     []byte `json:"-"`
}

type AddFriend struct {
	ID       int64 `json:"id"`
	FriendID int64 `json:"friendid"`
}

type CreateGroup struct {
	ID        int64  `json:"id"`
	GroupName string `json:"groupname"`
	GroupDesc string `json:"groupdesc"`
}

type JoinGroup struct {
	ID      int64 `json:"id"`
	GroupID int64 `json:"groupid"`
}

// Unknown carries a well-formed line whose msgid has no schema.
type Unknown struct {
	Code Kind
	Raw  []byte
}

func (Login) Kind() Kind        { return KindLogin }
func (Logout) Kind() Kind       { return KindLogout }
func (Register) Kind() Kind     { return KindRegister }
func (OneToOneChat) Kind() Kind { return KindOneToOneChat }
func (GroupChat) Kind() Kind    { return KindGroupChat }
func (AddFriend) Kind() Kind    { return KindAddFriend }
func (CreateGroup) Kind() Kind  { return KindCreateGroup }
func (JoinGroup) Kind() Kind    { return KindJoinGroup }
func (u Unknown) Kind() Kind    { return u.Code }

var required = map[Kind][]string{
	KindLogin:        {"id", "password"},
	KindLogout:       {"id"},
	KindRegister:     {"name", "password"},
	KindOneToOneChat: {"id", "toid", "msg"},
	KindGroupChat:    {"id", "groupid", "msg"},
	KindAddFriend:    {"id", "friendid"},
	KindCreateGroup:  {"id", "groupname", "groupdesc"},
	KindJoinGroup:    {"id", "groupid"},
}

// Decode parses one line into its message variant.
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !gjson.ValidBytes(line) {
		return nil, ErrInvalidPacket
	}

	id := gjson.GetBytes(line, "msgid")
	if id.Type != gjson.Number {
		return nil, ErrMissingKind
	}
	kind := Kind(id.Int())

	fields, known := required[kind]
	if !known {
		return Unknown{Code: kind, Raw: clone(line)}, nil
	}
	for _, field := range fields {
		if !gjson.GetBytes(line, field).Exists() {
			return nil, fmt.Errorf("%w: %s requires %q", ErrMissingField, kind, field)
		}
	}

	var (
		msg Message
		err error
	)
	switch kind {
	case KindLogin:
		msg, err = decodeAs[Login](line)
	case KindLogout:
		msg, err = decodeAs[Logout](line)
	case KindRegister:
		msg, err = decodeAs[Register](line)
	case KindOneToOneChat:
		var m OneToOneChat
		m, err = decodeAs[OneToOneChat](line)
		m.Raw = clone(line)
		msg = m
	case KindGroupChat:
		var m GroupChat
		m, err = decodeAs[GroupChat](line)
		m.Raw = clone(line)
		msg = m
	case KindAddFriend:
		msg, err = decodeAs[AddFriend](line)
	case KindCreateGroup:
		msg, err = decodeAs[CreateGroup](line)
	case KindJoinGroup:
		msg, err = decodeAs[JoinGroup](line)
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeAs[T Message](line []byte) (T, error) {
	var m T
	if err := json.Unmarshal(line, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	return m, nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
