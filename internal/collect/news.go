package collect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/TobiSchelling/techdigest/internal/article"
	"github.com/TobiSchelling/techdigest/internal/llm"
)

const (
	newsSourceName = "Gemini News"
	newsMaxTokens  = 2048
)

// NewsSource asks a search-grounded model for today's top tech stories.
// The records come back already summarized.
type NewsSource struct {
	provider llm.Provider
	limit    int
	logger   *slog.Logger
}

// NewNewsSource creates a news source backed by provider.
func NewNewsSource(provider llm.Provider, limit int, logger *slog.Logger) *NewsSource {
	return &NewsSource{provider: provider, limit: limit, logger: logger.With("source", newsSourceName)}
}

func (s *NewsSource) Name() string             { return newsSourceName }
func (s *NewsSource) Section() article.Section { return article.SectionNews }

// NewsPrompt builds the instruction asking for limit stories.
func NewsPrompt(limit int) string {
	return fmt.Sprintf(`Find the top %d most important tech news stories from today.
For each story, provide:
1. Title
2. Source URL
3. A 2-3 sentence summary
4. A short "Why This Matters:" section with 2-3 bullet points in simple words

Format your response as a list with clear separation between articles.
Use exactly this format:
---
Title: [title]
URL: [url]
Summary: [summary]
Why This Matters:
• [point]
• [point]
---`, limit)
}

// Fetch generates and parses the news list. Incomplete blocks are logged
// and skipped.
func (s *NewsSource) Fetch(ctx context.Context) ([]article.RawRecord, error) {
	text, err := s.provider.Generate(ctx, NewsPrompt(s.limit), newsMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("generating news: %w", err)
	}

	recs, dropped := ParseNewsResponse(text)
	for _, d := range dropped {
		s.logger.Warn("dropped news block", "title", d.Title, "reason", d.Reason)
	}

	if len(recs) > s.limit {
		recs = recs[:s.limit]
	}
	for i := range recs {
		recs[i].Source = newsSourceName
	}
	return recs, nil
}
