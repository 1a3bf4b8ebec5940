package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GoogleGenerator generates text with Gemini models.
type GoogleGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGoogleGenerator creates a new Google Gemini generator bound to one model.
func NewGoogleGenerator(apiKey, model string, timeout time.Duration) (*GoogleGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("google model is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleGenerator{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// Name returns the generator identifier.
func (g *GoogleGenerator) Name() string {
	return "google"
}

// Generate sends a prompt to Gemini and returns the response text.
func (g *GoogleGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		status := 0
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return "", &ProviderError{Provider: g.Name(), Status: status, Err: err}
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", &ProviderError{Provider: g.Name(), Err: fmt.Errorf("no candidates returned")}
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}
	return content, nil
}
