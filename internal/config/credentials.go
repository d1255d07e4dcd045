package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Configuration validation errors. Callers match them with errors.Is.
var (
	// ErrMissingCredentials is returned when an enabled component has no API credential.
	ErrMissingCredentials = errors.New("missing required environment variables")

	// ErrInvalidLimit is returned when a per-source item limit is not positive.
	ErrInvalidLimit = errors.New("invalid item limit: must be positive")

	// ErrInvalidWorkers is returned when the enrichment worker count is not positive.
	ErrInvalidWorkers = errors.New("invalid enrichment workers: must be positive")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrNoSummarizerTier is returned when summarization lists no tiers.
	ErrNoSummarizerTier = errors.New("no summarization tiers configured")

	// ErrUnknownTier is returned for a tier name that has no provider.
	ErrUnknownTier = errors.New("unknown summarization tier")

	// ErrNoSources is returned when every source is disabled.
	ErrNoSources = errors.New("no sources enabled")
)

// KnownTiers lists the summarization tier names a config may use.
var KnownTiers = []string{"groq", "huggingface", "ollama"}

// Credentials holds secrets read from the environment. They never live in YAML.
type Credentials struct {
	GeminiAPIKey       string
	GroqAPIKey         string
	HuggingFaceAPIKey  string
	RedditClientID     string
	RedditClientSecret string
}

// LoadCredentials reads every credential named by the config from the environment.
func (c *Config) LoadCredentials() Credentials {
	return Credentials{
		GeminiAPIKey:       os.Getenv(c.Sources.News.APIKeyEnv),
		GroqAPIKey:         os.Getenv(c.Summarization.GroqAPIKeyEnv),
		HuggingFaceAPIKey:  os.Getenv(c.Summarization.HuggingFaceKeyEnv),
		RedditClientID:     os.Getenv(c.Sources.Reddit.ClientIDEnv),
		RedditClientSecret: os.Getenv(c.Sources.Reddit.ClientSecretEnv),
	}
}

// Validate checks the config against the resolved credentials. It runs
// before any network call; the first failing rule is returned, except for
// missing credentials which are all reported together.
func (c *Config) Validate(creds Credentials) error {
	s := c.Sources
	if !s.News.Enabled && !s.HackerNews.Enabled && !s.Reddit.Enabled && !s.Arxiv.Enabled {
		return ErrNoSources
	}

	var missing []string
	if s.News.Enabled && creds.GeminiAPIKey == "" {
		missing = append(missing, s.News.APIKeyEnv)
	}
	if s.Reddit.Enabled {
		if creds.RedditClientID == "" {
			missing = append(missing, s.Reddit.ClientIDEnv)
		}
		if creds.RedditClientSecret == "" {
			missing = append(missing, s.Reddit.ClientSecretEnv)
		}
	}
	if c.hasTier("groq") && creds.GroqAPIKey == "" {
		missing = append(missing, c.Summarization.GroqAPIKeyEnv)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	for _, limit := range []int{s.MaxArticlesPerSource, s.News.Limit, s.HackerNews.Limit, s.Reddit.Limit, s.Arxiv.Limit} {
		if limit < 0 {
			return ErrInvalidLimit
		}
	}
	if s.MaxArticlesPerSource == 0 {
		return ErrInvalidLimit
	}

	if c.Enrichment.Enabled {
		if c.Enrichment.Workers <= 0 {
			return ErrInvalidWorkers
		}
		if c.Enrichment.Timeout <= 0 {
			return ErrInvalidTimeout
		}
	}

	if len(c.Summarization.Tiers) == 0 {
		return ErrNoSummarizerTier
	}
	for _, tier := range c.Summarization.Tiers {
		if !isKnownTier(tier) {
			return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
		}
	}
	if c.Summarization.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

func (c *Config) hasTier(name string) bool {
	for _, t := range c.Summarization.Tiers {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

func isKnownTier(name string) bool {
	for _, t := range KnownTiers {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}
