// Package enrich adds preview images and readable body text to articles
// with bounded concurrent page lookups.
package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/techdigest/internal/article"
)

const (
	maxPageBytes   = 5 << 20
	minContentLen  = 100
	defaultWorkers = 5
	defaultTimeout = 5 * time.Second
)

// ErrDisallowed is returned when robots.txt forbids the page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Options configures an Enricher.
type Options struct {
	Workers       int
	Timeout       time.Duration
	FetchContent  bool
	RespectRobots bool
	UserAgent     string
}

// Stats counts lookup outcomes of one Enrich call.
type Stats struct {
	Images  int
	Content int
	Skipped int
	Failed  int
}

// Page is what one lookup extracted.
type Page struct {
	ImageURL string
	Text     string
}

// Enricher performs page lookups.
type Enricher struct {
	client *http.Client
	opts   Options
	robots *RobotsCache
	logger *slog.Logger
}

// New creates an Enricher. Zero workers or timeout fall back to 5 and 5s.
func New(opts Options, client *http.Client, logger *slog.Logger) *Enricher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		}
	}
	e := &Enricher{client: client, opts: opts, logger: logger.With("component", "enrich")}
	if opts.RespectRobots {
		e.robots = NewRobotsCache(client, opts.UserAgent, opts.Timeout)
	}
	return e
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeFailed
	outcomeDone
)

// Enrich returns a copy of arts with image URLs and, where useful, body
// text filled in. The output has the same length and order as the input;
// a failed lookup leaves that article unchanged.
func (e *Enricher) Enrich(ctx context.Context, arts []article.Article) ([]article.Article, Stats) {
	out := make([]article.Article, len(arts))
	copy(out, arts)
	outcomes := make([]outcome, len(arts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i := range out {
		if article.IsPlaceholderURL(out[i].URL) {
			continue
		}
		g.Go(func() error {
			wantText := e.opts.FetchContent && needsText(out[i])
			page, err := e.lookup(gctx, out[i].URL, wantText)
			if err != nil {
				if errors.Is(err, ErrDisallowed) {
					e.logger.Debug("lookup skipped", "url", out[i].URL, "reason", err)
					return nil
				}
				e.logger.Debug("lookup failed", "url", out[i].URL, "title", out[i].Title, "error", err)
				outcomes[i] = outcomeFailed
				return nil
			}
			if page.ImageURL != "" {
				out[i].ImageURL = page.ImageURL
			}
			if wantText && page.Text != "" {
				out[i].RawContent = page.Text
			}
			outcomes[i] = outcomeDone
			return nil
		})
	}
	_ = g.Wait()

	var stats Stats
	for i, o := range outcomes {
		switch o {
		case outcomeSkipped:
			stats.Skipped++
		case outcomeFailed:
			stats.Failed++
		case outcomeDone:
			if out[i].ImageURL != arts[i].ImageURL {
				stats.Images++
			}
			if out[i].RawContent != arts[i].RawContent {
				stats.Content++
			}
		}
	}
	e.logger.Info("enrichment complete", "images", stats.Images, "content", stats.Content, "failed", stats.Failed, "skipped", stats.Skipped)
	return out, stats
}

// needsText reports whether the summarizer would otherwise fall back to
// the bare title.
func needsText(a article.Article) bool {
	return a.Summary == "" && a.RawContent == "" && a.Abstract == ""
}

// lookup fetches pageURL once and extracts the preview image and, when
// wantText is set, readable body text.
func (e *Enricher) lookup(ctx context.Context, pageURL string, wantText bool) (Page, error) {
	u, err := url.Parse(pageURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Page{}, fmt.Errorf("unsupported url %q", pageURL)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	if e.robots != nil && !e.robots.Allowed(ctx, u) {
		return Page{}, ErrDisallowed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, err
	}
	if e.opts.UserAgent != "" {
		req.Header.Set("User-Agent", e.opts.UserAgent)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		body = resp.Body
	}
	data, err := io.ReadAll(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return Page{}, fmt.Errorf("reading body: %w", err)
	}

	// Redirects change the base for relative image paths.
	base := u
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("parsing html: %w", err)
	}

	page := Page{ImageURL: ExtractImage(doc, base)}
	if wantText {
		page.Text = extractText(data, base)
	}
	return page, nil
}

func extractText(data []byte, base *url.URL) string {
	parsed, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return ""
	}
	text := strings.TrimSpace(parsed.TextContent)
	if len(text) > minContentLen {
		return text
	}
	return ""
}
