package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicGenerator generates text with Claude models.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropicGenerator creates a new Anthropic generator bound to one model.
func NewAnthropicGenerator(apiKey, model string, timeout time.Duration) (*AnthropicGenerator, error) {
	if model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicGenerator{
		client:    client,
		model:     model,
		maxTokens: 4096,
		timeout:   timeout,
	}, nil
}

// Name returns the generator identifier.
func (g *AnthropicGenerator) Name() string {
	return "anthropic"
}

// Generate sends a prompt to Claude and returns the response text.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		status := 0
		var apierr *anthropic.Error
		if errors.As(err, &apierr) {
			status = apierr.StatusCode
		}
		return "", &ProviderError{Provider: g.Name(), Status: status, Err: err}
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	return content, nil
}
