package chat

import (
	"fmt"
	"strings"
	"time"
)

// Session is the append-only transcript of one learner conversation.
// It is not safe for concurrent use; the owner serializes access.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	turns []Turn
	now   func() time.Time
}

// NewSession returns an empty session. A non-empty instruction is stored as
// the leading system turn.
func NewSession(id, instruction string) *Session {
	s := &Session{
		ID:    id,
		turns: make([]Turn, 0, 16),
		now:   func() time.Time { return time.Now().UTC() },
	}
	s.CreatedAt = s.now()

	if strings.TrimSpace(instruction) != "" {
		// system turns are never empty here, so this cannot fail
		_, _ = s.Append(RoleSystem, instruction)
	}
	return s
}

// Append records a new turn and returns the stored copy.
func (s *Session) Append(role Role, text string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if role != RoleSystem && strings.TrimSpace(text) == "" {
		return Turn{}, ErrEmptyUtterance
	}

	turn := Turn{
		Sequence:  len(s.turns) + 1,
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	}
	s.turns = append(s.turns, turn)
	return turn, nil
}

// Tail returns the last n turns in append order. n <= 0 yields an empty slice.
func (s *Session) Tail(n int) []Turn {
	if n <= 0 {
		return []Turn{}
	}
	start := len(s.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// Last returns the most recent turn, or false when the session is empty.
func (s *Session) Last() (Turn, bool) {
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// First returns the oldest turn, or false when the session is empty.
func (s *Session) First() (Turn, bool) {
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[0], true
}

// Len returns the number of recorded turns.
func (s *Session) Len() int {
	return len(s.turns)
}

// Turns returns a copy of the whole transcript.
func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}
