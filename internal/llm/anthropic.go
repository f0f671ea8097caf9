package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentcore/agentcore/internal/conversation"
	"github.com/agentcore/agentcore/internal/mcpfleet"
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey      string
	APIKeyEnv   string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Retry       RetryPolicy
}

const defaultAnthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicClient adapts the Anthropic Messages API to the Model Client
// Port. It has no knowledge of the tool-call delimiter format; generate
// returns whatever text the model produced, untouched.
type AnthropicClient struct {
	client anthropic.Client
	model  string
	retry  RetryPolicy
}

// NewAnthropicClient constructs a client, resolving the API key from config
// or the environment. A missing credential returns *MissingCredential
// rather than a generic error.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	envVar := cfg.APIKeyEnv
	if envVar == "" {
		envVar = defaultAnthropicAPIKeyEnv
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(envVar)
	}
	if apiKey == "" {
		return nil, &MissingCredential{Provider: "anthropic", EnvVarName: envVar}
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryPolicy()
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(options...),
		model:  model,
		retry:  retry,
	}, nil
}

func (c *AnthropicClient) ModelName() string    { return c.model }
func (c *AnthropicClient) ProviderName() string { return "anthropic" }

// Generate issues a single non-streaming Messages call and returns the
// concatenated text of the response, which may embed delimiter blocks
// emitted by the model itself (this adapter does not use Anthropic's native
// tool_use blocks; tool descriptions are passed as plain text via the
// system prompt convention established by the Prompt Factory).
func (c *AnthropicClient) Generate(ctx context.Context, messages []conversation.Message, tools []mcpfleet.ToolDescriptor) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokensOrDefault(0),
	}

	var system strings.Builder
	var converted []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case conversation.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(m.Content)
		case conversation.RoleUser:
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case conversation.RoleAI:
			converted = append(converted, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case conversation.RoleToolResult:
			label := fmt.Sprintf("Tool (%s) Result: %s", m.ToolName, m.Content)
			converted = append(converted, anthropic.NewUserMessage(anthropic.NewTextBlock(label)))
		}
	}
	if system.Len() > 0 {
		params.System = []anthropic.TextBlockParam{{Text: system.String()}}
	}
	params.Messages = converted

	var out string
	err := c.retry.Do(ctx, isRetryableAnthropicError, func() error {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return err
		}
		out = renderAnthropicText(msg)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: generate: %w", err)
	}
	return out, nil
}

func renderAnthropicText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if text := block.AsAny(); text != nil {
			if t, ok := text.(anthropic.TextBlock); ok {
				b.WriteString(t.Text)
			}
		}
	}
	return b.String()
}

func maxTokensOrDefault(n int64) int64 {
	if n <= 0 {
		return 4096
	}
	return n
}

func isRetryableAnthropicError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 500, 502, 503, 529:
			return true
		}
		return false
	}
	return true
}

