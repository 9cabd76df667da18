package tutor

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
)

// Kind classifies failures surfaced to the presentation layer.
type Kind string

const (
	KindEmptyUtterance      Kind = "empty_utterance"
	KindProviderUnavailable Kind = "provider_unavailable"
	KindProviderRejected    Kind = "provider_rejected"
	KindCaptureUnavailable  Kind = "capture_unavailable"
	KindSynthesisFailed     Kind = "synthesis_failed"
)

var (
	// ErrProviderUnavailable marks network, timeout and upstream 5xx failures.
	ErrProviderUnavailable = errors.New("completion provider unavailable")
	// ErrProviderRejected marks auth, quota and malformed-response failures.
	ErrProviderRejected = errors.New("completion provider rejected the request")
	// ErrNothingPending is returned by RetryPending when no user turn awaits a reply.
	ErrNothingPending = errors.New("no pending user turn to retry")
)

// DialogueError is the error type returned across the controller boundary.
type DialogueError struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError builds a DialogueError.
func NewError(kind Kind, message string, err error) *DialogueError {
	return &DialogueError{Kind: kind, Message: message, Err: err}
}

func (e *DialogueError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *DialogueError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-issuing the same request may succeed without
// a configuration change.
func (e *DialogueError) Retryable() bool {
	return e.Kind == KindProviderUnavailable
}

// KindOf extracts the Kind of err, or "" when err is not a DialogueError.
func KindOf(err error) Kind {
	var de *DialogueError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func emptyUtteranceError() *DialogueError {
	return NewError(KindEmptyUtterance, "please type or say something first", chat.ErrEmptyUtterance)
}

// providerError converts a raw completer failure into the taxonomy.
// Unclassified failures are treated as transient.
func providerError(err error) *DialogueError {
	switch {
	case errors.Is(err, ErrProviderRejected):
		return NewError(KindProviderRejected, "the tutor service refused the request, check the API configuration", err)
	case errors.Is(err, ErrProviderUnavailable):
		return NewError(KindProviderUnavailable, "the tutor service is unreachable right now, please try again", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewError(KindProviderUnavailable, "the tutor took too long to answer, please try again", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(KindProviderUnavailable, "the tutor service is unreachable right now, please try again", err)
	}
	return NewError(KindProviderUnavailable, "the tutor could not answer, please try again", err)
}
