package openaigen

import (
	"context"
	"fmt"

	"answergate/domain/gate"
	"answergate/ports"

	"github.com/sashabaranov/go-openai"
)

var _ ports.ResponseGenerator = (*Generator)(nil)

// Config holds generation settings for the optional answer wrapper
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string // optional, for OpenAI-compatible endpoints
	Temperature float32
}

// Generator produces answers through the OpenAI chat completions API. Only
// the generation wrapper workflow uses it; deployments with their own
// pipeline never construct one.
type Generator struct {
	client *openai.Client
	cfg    Config
}

// NewGenerator creates an OpenAI-backed response generator
func NewGenerator(cfg Config) *Generator {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Generator{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
	}
}

// Generate runs one chat completion over the assembled prompt
func (g *Generator) Generate(ctx context.Context, prompt []gate.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(prompt))
	for _, msg := range prompt {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    messages,
		Temperature: g.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}
