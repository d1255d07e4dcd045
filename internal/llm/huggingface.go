package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// HuggingFaceProvider calls a hosted summarization model on the Inference
// API. The prompt is sent as the model input as-is.
type HuggingFaceProvider struct {
	URL    string
	APIKey string
	client *http.Client
}

// NewHuggingFaceProvider creates a provider for the model endpoint url.
// The API key is optional.
func NewHuggingFaceProvider(url, apiKey string, client *http.Client) *HuggingFaceProvider {
	return &HuggingFaceProvider{URL: url, APIKey: apiKey, client: defaultClient(client)}
}

func (h *HuggingFaceProvider) Name() string { return "huggingface" }

func (h *HuggingFaceProvider) IsConfigured() bool { return h.URL != "" }

// Generate returns the summary_text of the first result. maxTokens is
// ignored; the summarization parameters are fixed.
func (h *HuggingFaceProvider) Generate(ctx context.Context, prompt string, _ int) (string, error) {
	if h.URL == "" {
		return "", fmt.Errorf("huggingface: %w", ErrNotConfigured)
	}

	body := map[string]any{
		"inputs": prompt,
		"parameters": map[string]any{
			"max_length": 150,
			"min_length": 30,
			"do_sample":  false,
		},
	}

	var headers map[string]string
	if h.APIKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + h.APIKey}
	}

	var result []struct {
		SummaryText string `json:"summary_text"`
	}
	if err := postJSON(ctx, h.client, h.Name(), h.URL, headers, body, &result); err != nil {
		return "", err
	}

	if len(result) == 0 {
		return "", fmt.Errorf("huggingface: empty result list: %w", ErrBadResponse)
	}
	text := strings.TrimSpace(result[0].SummaryText)
	if text == "" {
		return "", fmt.Errorf("huggingface: missing summary_text: %w", ErrBadResponse)
	}
	return text, nil
}
