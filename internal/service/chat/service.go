package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
	"github.com/zhouzirui/fluent-tutor/backend/internal/store/transcript"
)

// ErrSessionNotFound is returned for ids that are not live (or not archived, for Transcript).
var ErrSessionNotFound = errors.New("session not found")

// SessionHooks receives session lifecycle notifications.
type SessionHooks interface {
	SessionStarted()
	SessionEnded(reason string)
}

// Options configures the registry.
type Options struct {
	// Instruction seeds each new session with a system turn when non-empty.
	Instruction string
	// IdleTimeout evicts sessions untouched for longer; zero disables eviction.
	IdleTimeout time.Duration
	Archive     transcript.Archive
	Hooks       SessionHooks
	Logger      *zerolog.Logger
	Now         func() time.Time
}

// Info summarizes a live session.
type Info struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"createdAt"`
	LastActive time.Time   `json:"lastActive"`
	Turns      []chat.Turn `json:"turns"`
}

type entry struct {
	mu         sync.Mutex
	session    *chat.Session
	lastActive time.Time
	archived   int
	closed     bool
}

// Service owns live tutoring sessions and serializes access to each of them.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	instruction string
	idleTimeout time.Duration
	archive     transcript.Archive
	hooks       SessionHooks
	logger      zerolog.Logger
	now         func() time.Time
}

// NewService bootstraps the in-memory session registry.
func NewService(opts Options) *Service {
	logger := log.With().Str("component", "sessions").Logger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		sessions:    make(map[string]*entry),
		instruction: opts.Instruction,
		idleTimeout: opts.IdleTimeout,
		archive:     opts.Archive,
		hooks:       opts.Hooks,
		logger:      logger,
		now:         now,
	}
}

// CreateSession provisions an anonymous session.
func (s *Service) CreateSession(ctx context.Context) (Info, error) {
	session := chat.NewSession(uuid.NewString(), s.instruction)
	e := &entry{session: session, lastActive: s.now()}

	s.mu.Lock()
	s.sessions[session.ID] = e
	s.mu.Unlock()

	if s.hooks != nil {
		s.hooks.SessionStarted()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	s.mirror(ctx, e)
	s.logger.Info().Str("session", session.ID).Msg("session created")
	return e.info(), nil
}

// Get returns a snapshot of a live session.
func (s *Service) Get(_ context.Context, sessionID string) (Info, error) {
	e, ok := s.lookup(sessionID)
	if !ok {
		return Info{}, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Info{}, ErrSessionNotFound
	}
	return e.info(), nil
}

// Transcript returns the turns of a session. Sessions that have left the
// registry are served from the archive when one is configured.
func (s *Service) Transcript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	if info, err := s.Get(ctx, sessionID); err == nil {
		return info.Turns, nil
	}
	if s.archive == nil {
		return nil, ErrSessionNotFound
	}

	entries, err := s.archive.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrSessionNotFound
	}
	turns := make([]chat.Turn, len(entries))
	for i, en := range entries {
		turns[i] = en.Turn()
	}
	return turns, nil
}

// Do runs fn with exclusive access to the session. Turns appended by fn are
// mirrored to the archive even when fn fails, since a failed dialogue cycle
// may still commit the user turn.
func (s *Service) Do(ctx context.Context, sessionID string, fn func(*chat.Session) error) error {
	e, ok := s.lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionNotFound
	}

	err := fn(e.session)
	e.lastActive = s.now()
	s.mirror(ctx, e)
	return err
}

// End discards a live session.
func (s *Service) End(_ context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	if s.hooks != nil {
		s.hooks.SessionEnded("ended")
	}
	s.logger.Info().Str("session", sessionID).Msg("session ended")
	return nil
}

// Len returns the number of live sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle since before now minus the idle timeout and
// returns how many were removed. Sessions busy inside Do are skipped.
func (s *Service) Sweep(now time.Time) int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := now.Add(-s.idleTimeout)

	s.mu.Lock()
	var expired []string
	for id, e := range s.sessions {
		if !e.mu.TryLock() {
			continue
		}
		if e.lastActive.Before(cutoff) {
			e.closed = true
			delete(s.sessions, id)
			expired = append(expired, id)
		}
		e.mu.Unlock()
	}
	s.mu.Unlock()

	for _, id := range expired {
		if s.hooks != nil {
			s.hooks.SessionEnded("expired")
		}
		s.logger.Debug().Str("session", id).Msg("session expired")
	}
	return len(expired)
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 || s.idleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Sweep(s.now()); n > 0 {
				s.logger.Info().Int("expired", n).Int("live", s.Len()).Msg("swept idle sessions")
			}
		}
	}
}

func (s *Service) lookup(sessionID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return e, ok
}

// mirror copies turns not yet archived. Caller holds e.mu.
func (s *Service) mirror(ctx context.Context, e *entry) {
	if s.archive == nil || e.session.Len() <= e.archived {
		return
	}

	turns := e.session.Turns()[e.archived:]
	entries := make([]transcript.Entry, len(turns))
	for i, turn := range turns {
		entries[i] = transcript.EntryFor(e.session.ID, turn)
	}

	// archive writes must outlive a cancelled request
	if err := s.archive.Append(context.WithoutCancel(ctx), entries...); err != nil {
		s.logger.Warn().Err(err).Str("session", e.session.ID).Msg("archive append failed")
		return
	}
	e.archived += len(turns)
}

func (e *entry) info() Info {
	return Info{
		ID:         e.session.ID,
		CreatedAt:  e.session.CreatedAt,
		LastActive: e.lastActive,
		Turns:      e.session.Turns(),
	}
}
