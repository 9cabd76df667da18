package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
)

// DefaultHistoryWindow is the number of recent turns sent with each request.
const DefaultHistoryWindow = 10

// Config controls the context window policy.
type Config struct {
	HistoryWindow int
	Instruction   string
}

// Recorder receives one observation per completed dialogue cycle.
type Recorder interface {
	ObserveUtterance(outcome string, elapsed time.Duration)
}

// Option customizes a Controller.
type Option func(*Controller)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithLogger replaces the default component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// Controller turns learner utterances into tutor replies. It keeps no state
// between calls; sessions are owned by the caller.
type Controller struct {
	window      int
	instruction string
	recorder    Recorder
	logger      zerolog.Logger
}

// NewController builds a Controller, filling defaults for zero config values.
func NewController(cfg Config, opts ...Option) *Controller {
	window := cfg.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	instruction := strings.TrimSpace(cfg.Instruction)
	if instruction == "" {
		instruction = DefaultInstruction
	}

	c := &Controller{
		window:      window,
		instruction: instruction,
		logger:      log.With().Str("component", "tutor").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Instruction returns the configured system instruction.
func (c *Controller) Instruction() string {
	return c.instruction
}

// HandleUtterance records text as a user turn, asks the completer for a reply
// and records the reply as a tutor turn. On provider failure the user turn
// stays committed and no tutor turn is added.
func (c *Controller) HandleUtterance(ctx context.Context, session *chat.Session, text string, completer Completer) (chat.Turn, error) {
	if strings.TrimSpace(text) == "" {
		c.observe(string(KindEmptyUtterance), 0)
		return chat.Turn{}, emptyUtteranceError()
	}

	if _, err := session.Append(chat.RoleUser, text); err != nil {
		if errors.Is(err, chat.ErrEmptyUtterance) {
			return chat.Turn{}, emptyUtteranceError()
		}
		return chat.Turn{}, fmt.Errorf("append user turn: %w", err)
	}

	return c.reply(ctx, session, completer)
}

// RetryPending re-requests a reply for a user turn left unanswered by an
// earlier failure, without appending the utterance again.
func (c *Controller) RetryPending(ctx context.Context, session *chat.Session, completer Completer) (chat.Turn, error) {
	last, ok := session.Last()
	if !ok || last.Role != chat.RoleUser {
		return chat.Turn{}, ErrNothingPending
	}
	return c.reply(ctx, session, completer)
}

// BuildContext returns the instruction followed by the recent non-system turns.
// A session seeded with its own system turn uses that text as the instruction.
func (c *Controller) BuildContext(session *chat.Session) []Message {
	instruction := c.instruction
	if first, ok := session.First(); ok && first.Role == chat.RoleSystem {
		instruction = first.Text
	}

	tail := session.Tail(c.window)
	messages := make([]Message, 0, len(tail)+1)
	messages = append(messages, Message{Role: chat.RoleSystem, Text: instruction})
	for _, turn := range tail {
		if turn.Role == chat.RoleSystem {
			continue
		}
		messages = append(messages, Message{Role: turn.Role, Text: turn.Text})
	}
	return messages
}

func (c *Controller) reply(ctx context.Context, session *chat.Session, completer Completer) (chat.Turn, error) {
	if completer == nil {
		derr := NewError(KindProviderRejected, "no tutor model is configured", ErrProviderRejected)
		c.observe(string(derr.Kind), 0)
		return chat.Turn{}, derr
	}

	messages := c.BuildContext(session)
	started := time.Now()
	text, err := completer.Complete(ctx, messages)
	elapsed := time.Since(started)
	if err != nil {
		derr := providerError(err)
		c.logger.Warn().
			Err(err).
			Str("session", session.ID).
			Str("kind", string(derr.Kind)).
			Dur("elapsed", elapsed).
			Msg("completion failed")
		c.observe(string(derr.Kind), elapsed)
		return chat.Turn{}, derr
	}

	text = strings.TrimSpace(text)
	if text == "" {
		derr := NewError(KindProviderRejected, "the tutor returned an empty reply", fmt.Errorf("%w: empty completion", ErrProviderRejected))
		c.observe(string(derr.Kind), elapsed)
		return chat.Turn{}, derr
	}

	turn, err := session.Append(chat.RoleTutor, text)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("append tutor turn: %w", err)
	}

	c.logger.Debug().
		Str("session", session.ID).
		Int("context", len(messages)).
		Int("length", len(text)).
		Dur("elapsed", elapsed).
		Msg("tutor replied")
	c.observe("ok", elapsed)
	return turn, nil
}

func (c *Controller) observe(outcome string, elapsed time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveUtterance(outcome, elapsed)
	}
}
