package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator generates text with OpenAI models.
type OpenAIGenerator struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIGenerator creates a new OpenAI generator bound to one model.
func NewOpenAIGenerator(apiKey, model string, timeout time.Duration) (*OpenAIGenerator, error) {
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(opts...)

	return &OpenAIGenerator{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// Name returns the generator identifier.
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// Generate sends a prompt to OpenAI and returns the response text.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(4096),
	})
	if err != nil {
		status := 0
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			status = apierr.StatusCode
		}
		return "", &ProviderError{Provider: g.Name(), Status: status, Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: g.Name(), Err: fmt.Errorf("no choices returned")}
	}
	return resp.Choices[0].Message.Content, nil
}
