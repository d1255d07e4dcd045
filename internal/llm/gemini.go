package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GeminiProvider calls generateContent with Google Search grounding enabled,
// so answers can cite current news.
type GeminiProvider struct {
	Model   string
	BaseURL string
	APIKey  string
	client  *http.Client
}

// NewGeminiProvider creates a provider. baseURL is typically
// https://generativelanguage.googleapis.com/v1beta.
func NewGeminiProvider(model, baseURL, apiKey string, client *http.Client) *GeminiProvider {
	return &GeminiProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		client:  defaultClient(client),
	}
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) IsConfigured() bool { return g.APIKey != "" }

// Generate returns the concatenated text parts of the first candidate.
func (g *GeminiProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.APIKey == "" {
		return "", fmt.Errorf("gemini: %w", ErrNotConfigured)
	}

	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"tools": []map[string]any{
			{"google_search": map[string]any{}},
		},
		"generationConfig": map[string]any{
			"maxOutputTokens": maxTokens,
			"temperature":     0.3,
		},
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.BaseURL, url.PathEscape(g.Model))
	headers := map[string]string{"x-goog-api-key": g.APIKey}
	if err := postJSON(ctx, g.client, g.Name(), endpoint, headers, body, &result); err != nil {
		return "", err
	}

	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates: %w", ErrBadResponse)
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("gemini: empty candidate: %w", ErrBadResponse)
	}
	return text, nil
}
