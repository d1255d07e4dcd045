// Package collect fetches raw records from every configured origin.
package collect

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/TobiSchelling/techdigest/internal/article"
	"github.com/TobiSchelling/techdigest/internal/config"
	"github.com/TobiSchelling/techdigest/internal/llm"
)

// Source fetches raw records from one origin. The section is fixed by the
// source, never inferred from content.
type Source interface {
	Name() string
	Section() article.Section
	Fetch(ctx context.Context) ([]article.RawRecord, error)
}

// Result holds the results of a collection run.
type Result struct {
	Records map[article.Section][]article.RawRecord
	Counts  map[string]int
	Failed  []string
	Sources int
}

// Total returns the number of collected records.
func (r *Result) Total() int {
	n := 0
	for _, recs := range r.Records {
		n += len(recs)
	}
	return n
}

// AllFailed reports whether every source failed.
func (r *Result) AllFailed() bool {
	return r.Sources > 0 && len(r.Failed) == r.Sources
}

// Collector runs each source in turn.
type Collector struct {
	sources []Source
	logger  *slog.Logger
}

// NewCollector creates a collector over the given sources.
func NewCollector(logger *slog.Logger, sources ...Source) *Collector {
	return &Collector{sources: sources, logger: logger.With("component", "collect")}
}

// Sources returns the configured sources.
func (c *Collector) Sources() []Source {
	return c.sources
}

// Collect fetches from all sources. A failing source is logged and
// contributes nothing; the others are unaffected.
func (c *Collector) Collect(ctx context.Context) *Result {
	r := &Result{
		Records: make(map[article.Section][]article.RawRecord),
		Counts:  make(map[string]int),
		Sources: len(c.sources),
	}

	for _, src := range c.sources {
		if ctx.Err() != nil {
			r.Failed = append(r.Failed, src.Name())
			continue
		}
		recs, err := src.Fetch(ctx)
		if err != nil {
			c.logger.Error("source failed", "source", src.Name(), "error", err)
			r.Failed = append(r.Failed, src.Name())
			continue
		}
		r.Records[src.Section()] = append(r.Records[src.Section()], recs...)
		r.Counts[src.Name()] = len(recs)
		c.logger.Info("collected", "source", src.Name(), "section", src.Section().Key(), "count", len(recs))
	}

	c.logger.Info("collection complete", "total", r.Total(), "failed", len(r.Failed))
	return r
}

// BuildSources creates the enabled sources from config, in section order.
func BuildSources(cfg *config.Config, creds config.Credentials, logger *slog.Logger) []Source {
	s := cfg.Sources
	var sources []Source

	if s.News.Enabled {
		client := &http.Client{Timeout: s.News.Timeout}
		provider := llm.NewGeminiProvider(s.News.Model, s.News.BaseURL, creds.GeminiAPIKey, client)
		sources = append(sources, NewNewsSource(provider, cfg.LimitFor(s.News.Limit), logger))
	}
	if s.HackerNews.Enabled {
		client := &http.Client{Timeout: s.HackerNews.Timeout}
		sources = append(sources, NewHackerNewsSource(s.HackerNews.BaseURL, cfg.LimitFor(s.HackerNews.Limit), client, logger))
	}
	if s.Reddit.Enabled {
		client := &http.Client{Timeout: s.Reddit.Timeout}
		sources = append(sources, NewRedditSource(RedditOptions{
			AuthURL:      s.Reddit.AuthURL,
			BaseURL:      s.Reddit.BaseURL,
			ClientID:     creds.RedditClientID,
			ClientSecret: creds.RedditClientSecret,
			UserAgent:    s.Reddit.UserAgent,
			Subreddits:   s.Reddit.Subreddits,
			Limit:        cfg.LimitFor(s.Reddit.Limit),
		}, client, logger))
	}
	if s.Arxiv.Enabled {
		feeds := make([]FeedConfig, len(s.Arxiv.Feeds))
		for i, f := range s.Arxiv.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name}
		}
		sources = append(sources, NewArxivSource(feeds, cfg.LimitFor(s.Arxiv.Limit), nil, logger))
	}

	return sources
}
