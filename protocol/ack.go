package protocol

import "encoding/json"

// LOGIN_ACK errno values.
const (
	LoginOK       = 0
	LoginInvalid  = 1
	LoginConflict = 2
)

// REGISTER_ACK errno values.
const (
	RegisterOK     = 0
	RegisterFailed = 1
)

type FriendInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type MemberInfo struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
	Role  string `json:"role"`
}

type GroupInfo struct {
	ID        int64        `json:"id"`
	GroupName string       `json:"groupname"`
	GroupDesc string       `json:"groupdesc"`
	Users     []MemberInfo `json:"users"`
}

type LoginAck struct {
	MsgID      Kind         `json:"msgid"`
	Errno      int          `json:"errno"`
	Errmsg     string       `json:"errmsg,omitempty"`
	ID         int64        `json:"id,omitempty"`
	Name       string       `json:"name,omitempty"`
	OfflineMsg []string     `json:"offlinemsg,omitempty"`
	Friends    []FriendInfo `json:"friends,omitempty"`
	Groups     []GroupInfo  `json:"groups,omitempty"`
}

type RegisterAck struct {
	MsgID  Kind   `json:"msgid"`
	Errno  int    `json:"errno"`
	Errmsg string `json:"errmsg,omitempty"`
	ID     int64  `json:"id,omitempty"`
}

func (LoginAck) Kind() Kind    { return KindLoginAck }
func (RegisterAck) Kind() Kind { return KindRegisterAck }

// Encode marshals an outbound message. The msgid field is filled from the
// message kind so callers cannot send a mismatched discriminator.
func Encode(m Message) ([]byte, error) {
	switch v := m.(type) {
	case LoginAck:
		v.MsgID = KindLoginAck
		return json.Marshal(v)
	case RegisterAck:
		v.MsgID = KindRegisterAck
		return json.Marshal(v)
	case OneToOneChat:
		if v.Raw != nil {
			return v.Raw, nil
		}
		return marshalWithKind(KindOneToOneChat, v)
	case GroupChat:
		if v.Raw != nil {
			return v.Raw, nil
		}
		return marshalWithKind(KindGroupChat, v)
	case Unknown:
		return v.Raw, nil
	default:
		return marshalWithKind(m.Kind(), m)
	}
}

func marshalWithKind(kind Kind, m any) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	fields["msgid"], _ = json.Marshal(kind)
	return json.Marshal(fields)
}
