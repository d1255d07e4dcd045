package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// GroqProvider talks to any OpenAI-compatible chat completions endpoint.
// Groq is the default.
type GroqProvider struct {
	Model   string
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewGroqProvider creates a provider for baseURL (e.g. https://api.groq.com/openai/v1).
func NewGroqProvider(model, baseURL, apiKey string, client *http.Client) *GroqProvider {
	return &GroqProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		client:  defaultClient(client),
	}
}

func (g *GroqProvider) Name() string { return "groq" }

// IsConfigured checks if the API key is set.
func (g *GroqProvider) IsConfigured() bool {
	return g.APIKey != ""
}

// Generate sends a single user message and returns the first choice.
func (g *GroqProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("groq: %w", ErrNotConfigured)
	}

	body := map[string]any{
		"model": g.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  maxTokens,
		"temperature": 0.3,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + g.APIKey}
	if err := postJSON(ctx, g.client, g.Name(), g.BaseURL+"/chat/completions", headers, body, &result); err != nil {
		return "", err
	}

	if len(result.Choices) == 0 {
		return "", fmt.Errorf("groq: no choices: %w", ErrBadResponse)
	}
	text := strings.TrimSpace(result.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("groq: empty choice: %w", ErrBadResponse)
	}
	return text, nil
}
