package chat

import (
	"errors"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleTutor  Role = "tutor"
)

var (
	// ErrEmptyUtterance is returned when a user or tutor turn carries no text.
	ErrEmptyUtterance = errors.New("utterance text is empty")
	// ErrUnknownRole is returned when appending a turn with an unsupported role.
	ErrUnknownRole = errors.New("unknown turn role")
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleTutor:
		return true
	default:
		return false
	}
}

// Turn is one immutable utterance in a conversation.
type Turn struct {
	Sequence  int       `json:"sequence"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}
