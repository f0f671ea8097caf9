// Package llm implements the Model Client Port: an abstract contract over
// any LLM backend, plus concrete Anthropic and OpenAI adapters.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentcore/agentcore/internal/conversation"
	"github.com/agentcore/agentcore/internal/mcpfleet"
)

// Client is the core's only view of a model backend. Generate returns the
// AI's complete turn content, possibly embedding the textual tool-call
// delimiter blocks verbatim — translating from the backend's native
// function-calling format is the adapter's responsibility, not the core's.
type Client interface {
	Generate(ctx context.Context, messages []conversation.Message, tools []mcpfleet.ToolDescriptor) (string, error)
	ModelName() string
	ProviderName() string
}

// MissingCredential is the distinguished factory error: a required
// credential was absent, and the caller should prompt the user and retry
// rather than treat this as a generic construction failure.
type MissingCredential struct {
	Provider   string
	EnvVarName string
}

func (e *MissingCredential) Error() string {
	return fmt.Sprintf("%s: missing credential, set %s", e.Provider, e.EnvVarName)
}

// AsMissingCredential reports whether err is (or wraps) a MissingCredential.
func AsMissingCredential(err error) (*MissingCredential, bool) {
	var mc *MissingCredential
	ok := errors.As(err, &mc)
	return mc, ok
}
