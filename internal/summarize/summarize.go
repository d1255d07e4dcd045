// Package summarize fills in missing article summaries through an ordered
// list of model tiers, ending in a deterministic truncation fallback.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/TobiSchelling/techdigest/internal/article"
	"github.com/TobiSchelling/techdigest/internal/config"
	"github.com/TobiSchelling/techdigest/internal/llm"
)

// Tier is one summarization strategy.
type Tier struct {
	Name     string
	Provider llm.Provider
	// Raw tiers receive the bare input text instead of the instruction
	// prompt (dedicated summarization models).
	Raw bool
	// Local tiers run on this machine.
	Local bool
}

// Options tune retries, pacing and budgets.
type Options struct {
	Delay          time.Duration
	MaxRetries     int
	Backoff        time.Duration
	CallTimeout    time.Duration
	MaxInput       int
	FallbackBudget int
	MaxTokens      int
}

// Outcome describes how one article got its summary.
type Outcome struct {
	Tier     article.Tier
	Attempts int
	Local    bool
	Called   bool
}

// Stats counts summaries per tier kind over a batch.
type Stats struct {
	Source   int
	Remote   int
	Local    int
	Fallback int
	ByTier   map[string]int
}

// Summarizer tries each tier in order.
type Summarizer struct {
	tiers  []Tier
	opts   Options
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Summarizer. Zero options take the usual defaults.
func New(tiers []Tier, opts Options, logger *slog.Logger) *Summarizer {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxInput <= 0 {
		opts.MaxInput = 1024
	}
	if opts.FallbackBudget <= 0 {
		opts.FallbackBudget = 200
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 300
	}
	return &Summarizer{
		tiers:  tiers,
		opts:   opts,
		logger: logger.With("component", "summarize"),
		sleep:  sleepContext,
	}
}

// BuildTiers creates the configured tiers in order. Tiers whose provider
// is not configured (missing key, local model not running) are skipped.
func BuildTiers(cfg config.Summarization, creds config.Credentials, client *http.Client, logger *slog.Logger) ([]Tier, error) {
	tiers := make([]Tier, 0, len(cfg.Tiers))
	for _, name := range cfg.Tiers {
		p, err := llm.NewProvider(name, cfg, creds, client)
		if err != nil {
			return nil, err
		}
		if !p.IsConfigured() {
			logger.Info("skipping unavailable tier", "tier", p.Name())
			continue
		}
		tiers = append(tiers, Tier{
			Name:     p.Name(),
			Provider: p,
			Raw:      p.Name() == "huggingface",
			Local:    p.Name() == "ollama",
		})
	}
	return tiers, nil
}

// OptionsFromConfig maps config values onto Options.
func OptionsFromConfig(cfg config.Summarization) Options {
	return Options{
		Delay:          cfg.Delay,
		MaxRetries:     cfg.MaxRetries,
		Backoff:        cfg.RetryBackoff,
		CallTimeout:    cfg.Timeout,
		MaxInput:       cfg.MaxInputChars,
		FallbackBudget: cfg.FallbackChars,
		MaxTokens:      cfg.MaxTokens,
	}
}

// Prompt builds the instruction for one article.
func Prompt(title, input string) string {
	var sb strings.Builder
	sb.WriteString("Summarize this tech article/post in 2-3 concise sentences. Focus on the key takeaway.\n")
	sb.WriteString("Then add a \"Why This Matters:\" section with 2-3 short bullet points starting with \"• \", ")
	sb.WriteString("written in simple words for a non-expert reader.\n\n")
	sb.WriteString("Title: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if input != "" && input != title {
		sb.WriteString("\nContent: ")
		sb.WriteString(input)
		sb.WriteString("\n")
	}
	sb.WriteString("\nSummary:")
	return sb.String()
}

var summaryLabel = regexp.MustCompile(`(?i)^\s*(?:\*\*)?\s*summary\s*(?:\*\*)?\s*[:\-–]\s*(?:\*\*)?`)

// StripLabel removes a leading "Summary:" label echoed by the model.
func StripLabel(s string) string {
	return strings.TrimSpace(summaryLabel.ReplaceAllString(strings.TrimSpace(s), ""))
}

// Summarize returns a copy of a with a non-empty summary. Articles that
// already carry one pass through unchanged.
func (s *Summarizer) Summarize(ctx context.Context, a article.Article) (article.Article, Outcome) {
	if strings.TrimSpace(a.Summary) != "" {
		if a.SummaryTier == "" {
			a.SummaryTier = article.TierSource
		}
		return a, Outcome{Tier: article.TierSource}
	}

	input := article.Truncate(article.SummaryInput(a), s.opts.MaxInput)
	prompt := Prompt(a.Title, input)
	out := Outcome{Called: len(s.tiers) > 0}

	for _, tier := range s.tiers {
		if ctx.Err() != nil {
			break
		}
		text := prompt
		if tier.Raw {
			text = input
		}

		summary, attempts, err := s.tryTier(ctx, tier, text)
		out.Attempts += attempts
		if err != nil {
			s.logger.Warn("tier failed", "tier", tier.Name, "title", a.Title, "attempts", attempts, "error", err)
			continue
		}

		a.Summary = summary
		a.SummaryTier = article.Tier(tier.Name)
		out.Tier = a.SummaryTier
		out.Local = tier.Local
		return a, out
	}

	a.Summary = article.Truncate(input, s.opts.FallbackBudget)
	a.SummaryTier = article.TierFallback
	out.Tier = article.TierFallback
	s.logger.Info("using truncation fallback", "title", a.Title)
	return a, out
}

var errEmptySummary = errors.New("empty summary")

// tryTier calls one provider, retrying only loading and transport errors.
func (s *Summarizer) tryTier(ctx context.Context, tier Tier, text string) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		summary, err := s.call(ctx, tier, text)
		if err == nil {
			return summary, attempt, nil
		}
		lastErr = err

		if !llm.Retryable(err) || attempt == s.opts.MaxRetries {
			return "", attempt, err
		}
		s.logger.Info("retrying", "tier", tier.Name, "attempt", attempt, "max", s.opts.MaxRetries, "backoff", s.opts.Backoff, "error", err)
		if err := s.sleep(ctx, s.opts.Backoff); err != nil {
			return "", attempt, err
		}
	}
	return "", s.opts.MaxRetries, lastErr
}

func (s *Summarizer) call(ctx context.Context, tier Tier, text string) (string, error) {
	if s.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
	}

	raw, err := tier.Provider.Generate(ctx, text, s.opts.MaxTokens)
	if err != nil {
		return "", err
	}
	summary := StripLabel(raw)
	if summary == "" {
		return "", fmt.Errorf("%s: %w", tier.Name, errEmptySummary)
	}
	return summary, nil
}

// SummarizeAll processes articles sequentially, pausing between model
// calls. No pause follows the last call and pass-through articles never
// cause one.
func (s *Summarizer) SummarizeAll(ctx context.Context, arts []article.Article) ([]article.Article, Stats) {
	out := make([]article.Article, len(arts))
	stats := Stats{ByTier: make(map[string]int)}
	called := false

	for i, a := range arts {
		if strings.TrimSpace(a.Summary) == "" && called && s.opts.Delay > 0 {
			if err := s.sleep(ctx, s.opts.Delay); err != nil {
				s.logger.Warn("delay interrupted", "error", err)
			}
		}

		res, outcome := s.Summarize(ctx, a)
		out[i] = res
		if outcome.Called {
			called = true
		}

		stats.ByTier[string(outcome.Tier)]++
		switch {
		case outcome.Tier == article.TierSource:
			stats.Source++
		case outcome.Tier == article.TierFallback:
			stats.Fallback++
		case outcome.Local:
			stats.Local++
		default:
			stats.Remote++
		}
	}

	s.logger.Info("summarization complete",
		"source", stats.Source, "remote", stats.Remote, "local", stats.Local, "fallback", stats.Fallback)
	return out, stats
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
