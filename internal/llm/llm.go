package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Completer is the single generative call both the structurer and the grader depend on.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, expectJSON bool) (string, error)
}

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("LLM returned no content")

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Client is a Completer that can also verify its endpoint and release resources.
type Client interface {
	Completer
	Ping(ctx context.Context) error
	Close() error
}

// New creates a client for the named provider.
func New(ctx context.Context, provider, baseURL, apiKey, modelName string) (Client, error) {
	switch strings.ToLower(provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(baseURL, apiKey, modelName), nil
	case ProviderGemini:
		g, err := NewGemini(ctx, apiKey, modelName)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// OpenAI wraps an OpenAI-compatible API client.
type OpenAI struct {
	api         *openai.Client
	model       string
	temperature float32
}

// NewOpenAI creates a new OpenAI-compatible client. An empty baseURL uses the public API.
func NewOpenAI(baseURL, apiKey, modelName string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		api:         openai.NewClientWithConfig(config),
		model:       modelName,
		temperature: 0.1,
	}
}

// Complete sends a system and user prompt and returns the first choice's content.
func (c *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string, expectJSON bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: c.temperature,
	}
	if expectJSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "raw", raw)
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyResponse
	}
	return raw, nil
}

// Ping checks that the endpoint answers by listing models.
func (c *OpenAI) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Close is a no-op; the HTTP client needs no teardown.
func (c *OpenAI) Close() error { return nil }
