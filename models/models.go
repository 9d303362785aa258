package models

// State is a user's presence as persisted in the users table.
type State string

const (
	Online  State = "online"
	Offline State = "offline"
)

// Role of a user inside one group.
type Role string

const (
	RoleCreator Role = "creator"
	RoleNormal  Role = "normal"
)

type User struct {
	ID       int64
	Name     string
	Password string // bcrypt hash when read back from the store
	State    State
}

// GroupMember is a user snapshot plus the role the user holds in a particular group.
type GroupMember struct {
	User
	Role Role
}

type Group struct {
	ID      int64
	Name    string
	Desc    string
	Members []GroupMember
}
