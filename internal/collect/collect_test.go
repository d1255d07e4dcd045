package collect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/TobiSchelling/techdigest/internal/article"
	"github.com/TobiSchelling/techdigest/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockProvider struct {
	response string
	err      error
	prompts  []string
}

func (m *mockProvider) Name() string       { return "mock" }
func (m *mockProvider) IsConfigured() bool { return true }
func (m *mockProvider) Generate(_ context.Context, prompt string, _ int) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.response, m.err
}

type stubSource struct {
	name    string
	section article.Section
	recs    []article.RawRecord
	err     error
}

func (s *stubSource) Name() string             { return s.name }
func (s *stubSource) Section() article.Section { return s.section }
func (s *stubSource) Fetch(context.Context) ([]article.RawRecord, error) {
	return s.recs, s.err
}

func TestCollectorIsolatesFailures(t *testing.T) {
	c := NewCollector(testLogger(),
		&stubSource{name: "news", section: article.SectionNews, recs: []article.RawRecord{{Title: "n"}}},
		&stubSource{name: "hn", section: article.SectionForum, err: errors.New("boom")},
		&stubSource{name: "reddit", section: article.SectionForum, recs: []article.RawRecord{{Title: "r1"}, {Title: "r2"}}},
	)

	r := c.Collect(context.Background())
	if r.Total() != 3 {
		t.Errorf("expected 3 records, got %d", r.Total())
	}
	if len(r.Failed) != 1 || r.Failed[0] != "hn" {
		t.Errorf("unexpected failures %v", r.Failed)
	}
	if r.AllFailed() {
		t.Error("not all sources failed")
	}
	if len(r.Records[article.SectionForum]) != 2 || r.Counts["reddit"] != 2 {
		t.Errorf("unexpected forum records %v", r.Records[article.SectionForum])
	}
}

func TestCollectorAllFailed(t *testing.T) {
	c := NewCollector(testLogger(),
		&stubSource{name: "a", err: errors.New("x")},
		&stubSource{name: "b", err: errors.New("y")},
	)
	if r := c.Collect(context.Background()); !r.AllFailed() {
		t.Error("expected all sources failed")
	}
}

func TestNewsSource(t *testing.T) {
	mp := &mockProvider{response: `---
Title: One
URL: https://example.com/1
Summary: First.
---
Title: Two
URL: https://example.com/2
Summary: Second.
---
Title: Three
Summary: Third.
---`}

	s := NewNewsSource(mp, 2, testLogger())
	recs, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(recs))
	}
	if recs[0].Source != "Gemini News" {
		t.Errorf("unexpected source %q", recs[0].Source)
	}
	if !strings.Contains(mp.prompts[0], "top 2 most important") {
		t.Errorf("limit missing from prompt: %q", mp.prompts[0])
	}
}

func TestNewsSourceProviderError(t *testing.T) {
	s := NewNewsSource(&mockProvider{err: errors.New("quota")}, 3, testLogger())
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestHackerNewsSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/topstories.json":
			io.WriteString(w, `[1, 2, 3, 4]`)
		case "/item/1.json":
			io.WriteString(w, `{"id":1,"title":"Story one","url":"https://example.com/1","score":100,"time":1714521600}`)
		case "/item/2.json":
			io.WriteString(w, `{"id":2,"title":"Ask HN: anything?","score":50}`)
		case "/item/3.json":
			http.Error(w, "gone", http.StatusInternalServerError)
		case "/item/4.json":
			t.Error("item beyond the limit was requested")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewHackerNewsSource(srv.URL, 3, srv.Client(), testLogger())
	recs, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 story, got %d", len(recs))
	}
	rec := recs[0]
	if rec.Score == nil || *rec.Score != 100 {
		t.Error("expected score 100")
	}
	if rec.CommentsURL != "https://news.ycombinator.com/item?id=1" {
		t.Errorf("unexpected comments url %q", rec.CommentsURL)
	}
	if rec.Published != "2024-05-01" {
		t.Errorf("unexpected published %q", rec.Published)
	}
}

func TestHackerNewsSourceTopStoriesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHackerNewsSource(srv.URL, 3, srv.Client(), testLogger())
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRedditSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "id" || pass != "secret" {
				t.Errorf("unexpected basic auth %q %q", user, pass)
			}
			r.ParseForm()
			if r.Form.Get("grant_type") != "client_credentials" {
				t.Errorf("unexpected grant type %q", r.Form.Get("grant_type"))
			}
			io.WriteString(w, `{"access_token":"tok"}`)
		case "/r/golang/top":
			if r.Header.Get("Authorization") != "bearer tok" {
				t.Errorf("unexpected auth %q", r.Header.Get("Authorization"))
			}
			if r.Header.Get("User-Agent") != "test-agent" {
				t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
			}
			if r.URL.Query().Get("t") != "day" || r.URL.Query().Get("limit") != "2" {
				t.Errorf("unexpected query %q", r.URL.RawQuery)
			}
			io.WriteString(w, listingJSON("golang", 2))
		case "/r/broken/top":
			http.Error(w, "nope", http.StatusForbidden)
		case "/r/rust/top":
			io.WriteString(w, listingJSON("rust", 2))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewRedditSource(RedditOptions{
		AuthURL:      srv.URL + "/api/v1/access_token",
		BaseURL:      srv.URL,
		ClientID:     "id",
		ClientSecret: "secret",
		UserAgent:    "test-agent",
		Subreddits:   []string{"golang", "broken", "rust"},
		Limit:        2,
	}, srv.Client(), testLogger())

	recs, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected result capped at 2, got %d", len(recs))
	}
	if recs[0].Source != "r/golang" {
		t.Errorf("unexpected source %q", recs[0].Source)
	}
	if recs[0].URL != "https://reddit.com/r/golang/comments/0/post" || recs[0].CommentsURL != recs[0].URL {
		t.Errorf("unexpected links %q %q", recs[0].URL, recs[0].CommentsURL)
	}
}

func TestRedditSourceTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad creds", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewRedditSource(RedditOptions{AuthURL: srv.URL, BaseURL: srv.URL, Subreddits: []string{"go"}, Limit: 3}, srv.Client(), testLogger())
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestRedditSourceAllSubredditsFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			io.WriteString(w, `{"access_token":"tok"}`)
			return
		}
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewRedditSource(RedditOptions{
		AuthURL:    srv.URL + "/token",
		BaseURL:    srv.URL,
		Subreddits: []string{"golang", "rust"},
		Limit:      3,
	}, srv.Client(), testLogger())

	recs, err := s.Fetch(context.Background())
	if err == nil {
		t.Fatalf("expected error, got %d records", len(recs))
	}

	c := NewCollector(testLogger(), s)
	res := c.Collect(context.Background())
	if !res.AllFailed() {
		t.Error("collector should report every source as failed")
	}
}

func listingJSON(sub string, n int) string {
	var children []string
	for i := 0; i < n; i++ {
		children = append(children, fmt.Sprintf(
			`{"data":{"title":"%s post %d","permalink":"/r/%s/comments/%d/post","score":%d,"created_utc":1714521600.0}}`,
			sub, i, sub, i, 10*(i+1)))
	}
	return `{"data":{"children":[` + strings.Join(children, ",") + `]}}`
}

const arxivFeedA = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
<title>cs.AI updates on arXiv.org</title>
<link>http://rss.arxiv.org/rss/cs.AI</link>
<description>cs.AI updates</description>
<item>
  <title>Scaling   Laws
   for Agents</title>
  <link>https://arxiv.org/abs/2405.00001</link>
  <description>arXiv:2405.00001v1 Announce Type: new
Abstract: We study &lt;b&gt;scaling&lt;/b&gt; of agents.</description>
  <dc:creator>Ann Lee, Bob Kim, Cy Park, Di Wu</dc:creator>
  <pubDate>Wed, 01 May 2024 00:00:00 -0400</pubDate>
</item>
<item>
  <title>Shared Paper</title>
  <link>https://arxiv.org/abs/2405.00002</link>
  <description>Abstract: Cross-listed.</description>
</item>
</channel>
</rss>`

const arxivFeedB = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>cs.LG updates on arXiv.org</title>
<link>http://rss.arxiv.org/rss/cs.LG</link>
<description>cs.LG updates</description>
<item>
  <title>Shared Paper</title>
  <link>https://arxiv.org/abs/2405.00002</link>
  <description>Abstract: Cross-listed.</description>
</item>
<item>
  <title>Only In LG</title>
  <link>https://arxiv.org/abs/2405.00003</link>
  <description>Abstract: Learning.</description>
</item>
</channel>
</rss>`

func arxivServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		switch r.URL.Path {
		case "/cs.AI":
			io.WriteString(w, arxivFeedA)
		case "/cs.LG":
			io.WriteString(w, arxivFeedB)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestArxivSourceDedupAndParse(t *testing.T) {
	srv := arxivServer(t)
	feeds := []FeedConfig{{URL: srv.URL + "/cs.AI"}, {URL: srv.URL + "/missing"}, {URL: srv.URL + "/cs.LG"}}

	s := NewArxivSource(feeds, 10, srv.Client(), testLogger())
	recs, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 unique papers, got %d", len(recs))
	}

	first := recs[0]
	if first.Title != "Scaling Laws for Agents" {
		t.Errorf("title not collapsed: %q", first.Title)
	}
	if first.Abstract != "We study scaling of agents." {
		t.Errorf("unexpected abstract %q", first.Abstract)
	}
	if len(first.Authors) != 4 || first.Authors[0] != "Ann Lee" {
		t.Errorf("unexpected authors %v", first.Authors)
	}
	if first.Summary != "" {
		t.Error("papers should arrive unsummarized")
	}
	if recs[2].Title != "Only In LG" {
		t.Errorf("unexpected third paper %q", recs[2].Title)
	}
}

func TestArxivSourceLimit(t *testing.T) {
	srv := arxivServer(t)
	s := NewArxivSource([]FeedConfig{{URL: srv.URL + "/cs.AI"}, {URL: srv.URL + "/cs.LG"}}, 1, srv.Client(), testLogger())
	recs, err := s.Fetch(context.Background())
	if err != nil || len(recs) != 1 {
		t.Fatalf("expected 1 paper, got %d (%v)", len(recs), err)
	}
}

func TestArxivSourceAllFeedsFail(t *testing.T) {
	srv := arxivServer(t)
	s := NewArxivSource([]FeedConfig{{URL: srv.URL + "/nope"}}, 3, srv.Client(), testLogger())
	if _, err := s.Fetch(context.Background()); err == nil {
		t.Error("expected error when every feed fails")
	}
}

func TestBuildSources(t *testing.T) {
	cfg := config.Default()
	sources := BuildSources(cfg, config.Credentials{}, testLogger())
	if len(sources) != 4 {
		t.Fatalf("expected 4 sources, got %d", len(sources))
	}
	want := []article.Section{article.SectionNews, article.SectionForum, article.SectionForum, article.SectionPapers}
	for i, s := range sources {
		if s.Section() != want[i] {
			t.Errorf("source %s: expected section %v, got %v", s.Name(), want[i], s.Section())
		}
	}

	cfg.Sources.News.Enabled = false
	cfg.Sources.Reddit.Enabled = false
	if got := len(BuildSources(cfg, config.Credentials{}, testLogger())); got != 2 {
		t.Errorf("expected 2 sources, got %d", got)
	}
}
