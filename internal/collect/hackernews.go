package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/techdigest/internal/article"
)

const hackerNewsName = "Hacker News"

// HackerNewsSource reads the top stories list and looks up each item.
type HackerNewsSource struct {
	baseURL string
	limit   int
	client  *http.Client
	logger  *slog.Logger
}

// NewHackerNewsSource creates a source for the Firebase API at baseURL.
func NewHackerNewsSource(baseURL string, limit int, client *http.Client, logger *slog.Logger) *HackerNewsSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HackerNewsSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		limit:   limit,
		client:  client,
		logger:  logger.With("source", hackerNewsName),
	}
}

func (s *HackerNewsSource) Name() string             { return hackerNewsName }
func (s *HackerNewsSource) Section() article.Section { return article.SectionForum }

type hnItem struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
	Time  int64  `json:"time"`
}

// Fetch looks up the first limit top stories. Items without an external
// link (Ask HN and the like) are skipped, as are items whose lookup fails.
func (s *HackerNewsSource) Fetch(ctx context.Context) ([]article.RawRecord, error) {
	var ids []int
	if err := getJSON(ctx, s.client, s.baseURL+"/topstories.json", nil, &ids); err != nil {
		return nil, fmt.Errorf("fetching top stories: %w", err)
	}
	if len(ids) > s.limit {
		ids = ids[:s.limit]
	}

	var recs []article.RawRecord
	for _, id := range ids {
		var item hnItem
		if err := getJSON(ctx, s.client, fmt.Sprintf("%s/item/%d.json", s.baseURL, id), nil, &item); err != nil {
			s.logger.Warn("item lookup failed", "id", id, "error", err)
			continue
		}
		if item.URL == "" {
			continue
		}

		score := item.Score
		rec := article.RawRecord{
			Title:       item.Title,
			URL:         item.URL,
			Source:      hackerNewsName,
			Score:       &score,
			CommentsURL: fmt.Sprintf("https://news.ycombinator.com/item?id=%d", id),
		}
		if item.Time > 0 {
			rec.Published = time.Unix(item.Time, 0).UTC().Format("2006-01-02")
		}
		recs = append(recs, rec)
	}

	return recs, nil
}

// getJSON issues a GET and decodes a 200 response into out.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
