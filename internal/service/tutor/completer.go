package tutor

import (
	"context"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/chat"
)

// Message is one entry of the context window sent to a completion provider.
type Message struct {
	Role chat.Role
	Text string
}

// Completer produces the tutor reply for an ordered context window.
// Implementations should wrap their failures with ErrProviderUnavailable or
// ErrProviderRejected so the controller can classify them.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, messages []Message) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, messages []Message) (string, error) {
	return f(ctx, messages)
}
