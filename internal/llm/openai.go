package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/agentcore/agentcore/internal/conversation"
	"github.com/agentcore/agentcore/internal/mcpfleet"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey      string
	APIKeyEnv   string
	BaseURL     string
	Model       string
	Temperature float32
	Retry       RetryPolicy
}

const defaultOpenAIAPIKeyEnv = "OPENAI_API_KEY"
const defaultOpenAIModel = openai.GPT4o

// OpenAIClient adapts the Chat Completions API to the Model Client Port.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	retry       RetryPolicy
}

// NewOpenAIClient constructs a client, resolving the API key from config or
// the environment, returning *MissingCredential when absent.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	envVar := cfg.APIKeyEnv
	if envVar == "" {
		envVar = defaultOpenAIAPIKeyEnv
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(envVar)
	}
	if apiKey == "" {
		return nil, &MissingCredential{Provider: "openai", EnvVarName: envVar}
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryPolicy()
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		retry:       retry,
	}, nil
}

func (c *OpenAIClient) ModelName() string    { return c.model }
func (c *OpenAIClient) ProviderName() string { return "openai" }

// Generate issues a single non-streaming chat completion and returns the
// message content verbatim.
func (c *OpenAIClient) Generate(ctx context.Context, messages []conversation.Message, tools []mcpfleet.ToolDescriptor) (string, error) {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case conversation.RoleSystem:
			converted = append(converted, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		case conversation.RoleUser:
			converted = append(converted, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case conversation.RoleAI:
			converted = append(converted, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		case conversation.RoleToolResult:
			converted = append(converted, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Tool (%s) Result: %s", m.ToolName, m.Content),
			})
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    converted,
		Temperature: c.temperature,
	}

	var out string
	err := c.retry.Do(ctx, isRetryableOpenAIError, func() error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("openai: empty choices in response")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("openai: generate: %w", err)
	}
	return out, nil
}

func isRetryableOpenAIError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429, 500, 502, 503:
			return true
		}
		return false
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return true
	}
	return false
}
