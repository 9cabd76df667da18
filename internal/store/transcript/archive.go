// Package transcript mirrors conversation turns into durable storage so that
// transcripts outlive the in-memory session registry.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown archive driver")

// Entry is one archived turn.
type Entry struct {
	SessionID string
	Sequence  int
	Role      chat.Role
	Text      string
	CreatedAt time.Time
}

// Turn converts the entry back to a session turn.
func (e Entry) Turn() chat.Turn {
	return chat.Turn{Sequence: e.Sequence, Role: e.Role, Text: e.Text, CreatedAt: e.CreatedAt}
}

// EntryFor builds an archive entry from a session turn.
func EntryFor(sessionID string, turn chat.Turn) Entry {
	return Entry{
		SessionID: sessionID,
		Sequence:  turn.Sequence,
		Role:      turn.Role,
		Text:      turn.Text,
		CreatedAt: turn.CreatedAt,
	}
}

// Archive is an append-only turn log keyed by session and sequence. Appending
// an entry whose (session, sequence) already exists is a no-op.
type Archive interface {
	Append(ctx context.Context, entries ...Entry) error
	Load(ctx context.Context, sessionID string) ([]Entry, error)
	Close() error
}

// Open returns the archive backend named by driver. An empty driver means no
// archive: it returns nil, and a session's turns go away when it ends.
func Open(ctx context.Context, driver, dsn string) (Archive, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "":
		return nil, nil
	case "memory":
		return NewMemoryArchive(), nil
	case "sqlite":
		return NewSQLiteArchive(dsn)
	case "postgres":
		return NewPostgresArchive(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
