package enrich

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/TobiSchelling/techdigest/internal/article"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parsing html: %v", err)
	}
	return doc
}

func TestExtractImagePriority(t *testing.T) {
	page, _ := url.Parse("https://example.com/posts/1")

	tests := []struct {
		name string
		html string
		want string
	}{
		{"og first", `<meta property="og:image" content="https://cdn.example.com/og.png"><meta name="twitter:image" content="https://cdn.example.com/tw.png"><img src="/a.png">`, "https://cdn.example.com/og.png"},
		{"twitter second", `<meta name="twitter:image" content="https://cdn.example.com/tw.png"><img src="/a.png">`, "https://cdn.example.com/tw.png"},
		{"first img", `<p>x</p><img src="/img/a.png"><img src="/img/b.png">`, "https://example.com/img/a.png"},
		{"protocol relative", `<img src="//cdn.example.com/a.png">`, "https://cdn.example.com/a.png"},
		{"page relative", `<img src="thumb.png">`, "https://example.com/posts/thumb.png"},
		{"none", `<p>no images</p>`, ""},
		{"empty og falls through", `<meta property="og:image" content=" "><img src="/b.png">`, "https://example.com/b.png"},
		{"data og falls through", `<meta property="og:image" content="data:image/png;base64,xx"><meta name="twitter:image" content="/tw.png">`, "https://example.com/tw.png"},
		{"data img only", `<img src="data:image/gif;base64,R0lG">`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractImage(mustDoc(t, tt.html), page); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveImageURL(t *testing.T) {
	page, _ := url.Parse("http://news.example.org/a/b")
	if got := resolveImageURL("/x.png", page); got != "http://news.example.org/x.png" {
		t.Errorf("unexpected %q", got)
	}
	if got := resolveImageURL("data:image/png;base64,xx", page); got != "" {
		t.Errorf("expected data urls to be dropped, got %q", got)
	}
}

const articleHTML = `<html><head><title>Story</title>
<meta property="og:image" content="/cover.jpg"></head>
<body><article><h1>Story</h1>
<p>This is a long paragraph of article text that readability should find and keep because it is clearly the main content of the page.</p>
<p>A second paragraph adds more words so the extracted body comfortably exceeds the minimum length the enricher keeps.</p>
<p>Engineers at the company said the new release focuses on reliability, with fewer crashes, faster startup times and a simpler configuration format that teams can adopt gradually.</p>
<p>Early users reported that migrating their existing projects took less than a day, and that the improved error messages made it much easier to find problems before deploying to production.</p>
</article></body></html>`

func TestEnrichPreservesOrderAndSkipsPlaceholders(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ok":
			io.WriteString(w, articleHTML)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			io.WriteString(w, articleHTML)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	arts := []article.Article{
		{Title: "placeholder", URL: "#"},
		{Title: "ok", URL: srv.URL + "/ok"},
		{Title: "missing", URL: srv.URL + "/missing"},
		{Title: "slow", URL: srv.URL + "/slow"},
		{Title: "has summary", URL: srv.URL + "/ok", Summary: "already"},
	}

	e := New(Options{Workers: 2, Timeout: 50 * time.Millisecond, FetchContent: true}, srv.Client(), testLogger())
	out, stats := e.Enrich(context.Background(), arts)

	if len(out) != len(arts) {
		t.Fatalf("expected %d articles, got %d", len(arts), len(out))
	}
	for i := range arts {
		if out[i].Title != arts[i].Title {
			t.Errorf("index %d: order changed (%q != %q)", i, out[i].Title, arts[i].Title)
		}
	}
	if out[0].ImageURL != "" {
		t.Error("placeholder url should not be looked up")
	}
	if out[1].ImageURL != srv.URL+"/cover.jpg" {
		t.Errorf("unexpected image %q", out[1].ImageURL)
	}
	if len(out[1].RawContent) <= 100 {
		t.Errorf("expected readable body text, got %q", out[1].RawContent)
	}
	if out[2].ImageURL != "" || out[3].ImageURL != "" {
		t.Error("failed and timed out lookups should leave articles unchanged")
	}
	if out[4].RawContent != "" {
		t.Error("articles with a summary should not receive body text")
	}
	if out[4].ImageURL == "" {
		t.Error("articles with a summary still get an image")
	}
	if stats.Failed != 2 || stats.Skipped != 1 || stats.Images != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if arts[1].ImageURL != "" {
		t.Error("input slice must not be mutated")
	}
}

func TestEnrichNonUTF8Page(t *testing.T) {
	// "café" in ISO-8859-1
	body := []byte("<html><head><meta property=\"og:image\" content=\"https://x.example/caf\xe9.png\"></head></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		w.Write(body)
	}))
	defer srv.Close()

	e := New(Options{Workers: 1, Timeout: time.Second}, srv.Client(), testLogger())
	out, _ := e.Enrich(context.Background(), []article.Article{{URL: srv.URL}})
	if out[0].ImageURL != "https://x.example/café.png" {
		t.Errorf("expected decoded url, got %q", out[0].ImageURL)
	}
}

func TestEnrichRespectsRobots(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			io.WriteString(w, "User-agent: *\nDisallow: /private\n")
		default:
			io.WriteString(w, articleHTML)
		}
	}))
	defer srv.Close()

	e := New(Options{Workers: 2, Timeout: time.Second, RespectRobots: true, UserAgent: "techdigest-test"}, srv.Client(), testLogger())
	out, stats := e.Enrich(context.Background(), []article.Article{
		{URL: srv.URL + "/private/post"},
		{URL: srv.URL + "/public/post"},
	})

	if out[0].ImageURL != "" {
		t.Error("disallowed page was fetched")
	}
	if out[1].ImageURL == "" {
		t.Error("allowed page should be enriched")
	}
	if stats.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %+v", stats)
	}
}

func TestRobotsCacheServerErrorAllows(t *testing.T) {
	var robotsHits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		robotsHits.Add(1)
		http.Error(w, "oops", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewRobotsCache(srv.Client(), "ua", time.Second)
	u, _ := url.Parse(srv.URL + "/anything")
	for i := 0; i < 3; i++ {
		if !c.Allowed(context.Background(), u) {
			t.Fatal("expected allow on robots.txt server error")
		}
	}
	if robotsHits.Load() != 1 {
		t.Errorf("expected robots.txt fetched once, got %d", robotsHits.Load())
	}
}
