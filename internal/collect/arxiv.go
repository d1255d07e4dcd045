package collect

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/techdigest/internal/article"
)

const (
	arxivName        = "arXiv"
	maxAbstractChars = 2000
)

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// ArxivSource reads the arXiv listing RSS feeds.
type ArxivSource struct {
	feeds  []FeedConfig
	limit  int
	parser *gofeed.Parser
	policy *bluemonday.Policy
	logger *slog.Logger
}

// NewArxivSource creates a paper source over feeds.
func NewArxivSource(feeds []FeedConfig, limit int, client *http.Client, logger *slog.Logger) *ArxivSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	return &ArxivSource{
		feeds:  feeds,
		limit:  limit,
		parser: parser,
		policy: bluemonday.StrictPolicy(),
		logger: logger.With("source", arxivName),
	}
}

func (s *ArxivSource) Name() string             { return arxivName }
func (s *ArxivSource) Section() article.Section { return article.SectionPapers }

// Fetch reads every feed, drops duplicate links across feeds and stops at
// the limit. A failing feed is skipped; only all feeds failing is an error.
func (s *ArxivSource) Fetch(ctx context.Context) ([]article.RawRecord, error) {
	seen := make(map[string]bool)
	var recs []article.RawRecord
	failed := 0

	for _, fc := range s.feeds {
		feed, err := s.parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			s.logger.Warn("feed failed", "url", fc.URL, "error", err)
			failed++
			continue
		}

		for _, item := range feed.Items {
			rec, ok := s.parseItem(item)
			if !ok || seen[rec.URL] {
				continue
			}
			seen[rec.URL] = true
			recs = append(recs, rec)
			if len(recs) >= s.limit {
				return recs, nil
			}
		}
	}

	if failed > 0 && failed == len(s.feeds) {
		return nil, fmt.Errorf("all %d feeds failed", failed)
	}
	return recs, nil
}

func (s *ArxivSource) parseItem(item *gofeed.Item) (article.RawRecord, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		return article.RawRecord{}, false
	}

	description := item.Description
	if description == "" {
		description = item.Content
	}

	return article.RawRecord{
		Title:     collapseSpace(item.Title),
		URL:       link,
		Source:    arxivName,
		Abstract:  article.Truncate(s.abstract(description), maxAbstractChars),
		Authors:   authorNames(item.Authors),
		Published: strings.TrimSpace(item.Published),
	}, true
}

// abstract strips markup and the "arXiv:... Announce Type: ... Abstract:"
// preamble the listing feeds prepend.
func (s *ArxivSource) abstract(description string) string {
	text := html.UnescapeString(s.policy.Sanitize(description))
	text = collapseSpace(text)
	if i := strings.Index(text, "Abstract:"); i >= 0 {
		text = strings.TrimSpace(text[i+len("Abstract:"):])
	}
	return text
}

// authorNames flattens feed authors. The listing feeds put every name in
// one comma-separated dc:creator value.
func authorNames(people []*gofeed.Person) []string {
	var names []string
	for _, p := range people {
		if p == nil {
			continue
		}
		for _, name := range strings.Split(p.Name, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
