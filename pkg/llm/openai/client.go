// Package openai provides a generation provider backed by the OpenAI Chat
// Completions API. OpenAI-compatible endpoints are supported via BaseURL.
package openai

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/stanchat/convomem-go/pkg/llm"
)

// Client implements llm.Provider using the OpenAI Chat Completions API.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI generation client.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// Model is the model name (default: gpt-4o-mini).
	Model string

	// BaseURL overrides the API endpoint for OpenAI-compatible services.
	BaseURL string
}

// NewClient creates a new OpenAI generation client.
func NewClient(cfg *Config) (*Client, error) {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate generates text from a single user prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

// GenerateWithMessages generates text from a conversation history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("generation failed: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// Close is a no-op; the OpenAI SDK holds no connection state to release.
func (c *Client) Close() error {
	return nil
}
