package llm

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/TobiSchelling/techdigest/internal/config"
)

// NewProvider builds the provider for a summarization tier name.
func NewProvider(name string, cfg config.Summarization, creds config.Credentials, client *http.Client) (Provider, error) {
	switch strings.ToLower(name) {
	case "groq":
		return NewGroqProvider(cfg.GroqModel, cfg.GroqURL, creds.GroqAPIKey, client), nil
	case "huggingface":
		return NewHuggingFaceProvider(cfg.HuggingFaceURL, creds.HuggingFaceAPIKey, client), nil
	case "ollama":
		return NewOllamaProvider(cfg.OllamaModel, cfg.OllamaURL, client), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownTier, name)
}
