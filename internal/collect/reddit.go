package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TobiSchelling/techdigest/internal/article"
)

// RedditOptions configures the Reddit source.
type RedditOptions struct {
	AuthURL      string
	BaseURL      string
	ClientID     string
	ClientSecret string
	UserAgent    string
	Subreddits   []string
	Limit        int
}

// RedditSource reads the daily top posts of several subreddits through
// the OAuth API using an application-only token.
type RedditSource struct {
	opts   RedditOptions
	client *http.Client
	logger *slog.Logger
}

// NewRedditSource creates a Reddit source.
func NewRedditSource(opts RedditOptions, client *http.Client, logger *slog.Logger) *RedditSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &RedditSource{opts: opts, client: client, logger: logger.With("source", "Reddit")}
}

func (s *RedditSource) Name() string             { return "Reddit" }
func (s *RedditSource) Section() article.Section { return article.SectionForum }

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Permalink  string  `json:"permalink"`
				Score      int     `json:"score"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Fetch authenticates once, then reads each subreddit. A failing subreddit
// is skipped; a failed token request or every subreddit failing fails the
// whole source.
func (s *RedditSource) Fetch(ctx context.Context) ([]article.RawRecord, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticating with reddit: %w", err)
	}

	headers := map[string]string{
		"Authorization": "bearer " + token,
		"User-Agent":    s.opts.UserAgent,
	}

	var recs []article.RawRecord
	failed := 0
	for _, sub := range s.opts.Subreddits {
		endpoint := fmt.Sprintf("%s/r/%s/top?t=day&limit=%d", s.opts.BaseURL, url.PathEscape(sub), s.opts.Limit)

		var listing redditListing
		if err := getJSON(ctx, s.client, endpoint, headers, &listing); err != nil {
			s.logger.Warn("subreddit failed", "subreddit", sub, "error", err)
			failed++
			continue
		}

		for _, child := range listing.Data.Children {
			d := child.Data
			link := "https://reddit.com" + d.Permalink
			score := d.Score
			rec := article.RawRecord{
				Title:       d.Title,
				URL:         link,
				Source:      "r/" + sub,
				Score:       &score,
				CommentsURL: link,
			}
			if d.CreatedUTC > 0 {
				rec.Published = time.Unix(int64(d.CreatedUTC), 0).UTC().Format("2006-01-02")
			}
			recs = append(recs, rec)
		}
	}

	if failed > 0 && failed == len(s.opts.Subreddits) {
		return nil, fmt.Errorf("all %d subreddits failed", failed)
	}
	if len(recs) > s.opts.Limit {
		recs = recs[:s.opts.Limit]
	}
	return recs, nil
}

func (s *RedditSource) token(ctx context.Context) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(s.opts.ClientID, s.opts.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", s.opts.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding token: %w", err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("empty access token")
	}
	return result.AccessToken, nil
}
