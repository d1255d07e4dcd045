package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/techdigest/internal/archive"
	"github.com/TobiSchelling/techdigest/internal/database"
	"github.com/TobiSchelling/techdigest/internal/logging"
)

type fakeHistory struct {
	runs []database.Run
	err  error
}

func (h *fakeHistory) GetLatestRuns(limit int) ([]database.Run, error) {
	if h.err != nil {
		return nil, h.err
	}
	if limit > 0 && len(h.runs) > limit {
		return h.runs[:limit], nil
	}
	return h.runs, nil
}

func newTestServer(t *testing.T, history History) (*Server, *archive.Store) {
	t.Helper()
	store := archive.NewStore(t.TempDir())
	srv, err := New(store, history, logging.Discard())
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return srv, store
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexEmpty(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := get(srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No digests yet") {
		t.Error("expected empty state")
	}
}

func TestIndexShowsDigestsNewestFirst(t *testing.T) {
	history := &fakeHistory{runs: []database.Run{{
		PeriodID:      "2024-05-02",
		FinishedAt:    time.Date(2024, 5, 2, 7, 0, 0, 0, time.UTC),
		NewsCount:     2,
		ForumCount:    3,
		FailedSources: []string{"Reddit"},
	}}}
	srv, store := newTestServer(t, history)
	store.Write("2024-05-01", "<html><head><title>x</title></head><body><p>older digest</p></body></html>")
	store.Write("2024-05-02", "<html><body><p>newer digest</p></body></html>")
	store.WriteMarkdown("2024-05-02", "# md")

	rec := get(srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()

	older := strings.Index(body, "<p>older digest</p>")
	newer := strings.Index(body, "<p>newer digest</p>")
	if older < 0 || newer < 0 || newer > older {
		t.Errorf("digests missing or out of order (%d, %d)", newer, older)
	}
	if strings.Contains(body, "<title>x</title>") {
		t.Error("only body content should be embedded")
	}
	if !strings.Contains(body, `href="/digest/2024-05-02.md"`) {
		t.Error("expected markdown link for digest with export")
	}
	if strings.Contains(body, `href="/digest/2024-05-01.md"`) {
		t.Error("no markdown link without export")
	}
	if !strings.Contains(body, "5 articles, failed: Reddit") {
		t.Error("expected last run summary")
	}
	if !strings.Contains(body, ".article-title") {
		t.Error("expected digest styles")
	}
}

func TestIndexHistoryErrorStillRenders(t *testing.T) {
	srv, store := newTestServer(t, &fakeHistory{err: errors.New("locked")})
	store.Write("2024-05-01", "<body>d</body>")
	if rec := get(srv, "/"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestDigestRoute(t *testing.T) {
	srv, store := newTestServer(t, nil)
	doc := "<!DOCTYPE html><html><body>full</body></html>"
	store.Write("2024-05-01", doc)

	rec := get(srv, "/digest/2024-05-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != doc {
		t.Error("expected the stored document verbatim")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestDigestMarkdownRoute(t *testing.T) {
	srv, store := newTestServer(t, nil)
	store.Write("2024-05-01", "<body>x</body>")
	store.WriteMarkdown("2024-05-01", "# Tech Digest")

	rec := get(srv, "/digest/2024-05-01.md")
	if rec.Code != http.StatusOK || rec.Body.String() != "# Tech Digest" {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("unexpected content type %q", ct)
	}
}

func TestDigestNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	for _, path := range []string{
		"/digest/2024-05-01",
		"/digest/2024-05-01.md",
		"/digest/not-a-date",
		"/digest/2024-02-30",
		"/nope",
	} {
		if rec := get(srv, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestListDigestsAPI(t *testing.T) {
	srv, store := newTestServer(t, nil)
	store.Write("2024-05-01", "<body>a</body>")
	store.Write("2024-05-02", "<body>b</body>")
	store.WriteMarkdown("2024-05-01", "# a")

	rec := get(srv, "/api/digests")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Digests []digestJSON `json:"digests"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Digests) != 2 || resp.Digests[0].Date != "2024-05-02" {
		t.Fatalf("unexpected listing %+v", resp.Digests)
	}
	if resp.Digests[1].Markdown != "/digest/2024-05-01.md" || resp.Digests[0].Markdown != "" {
		t.Errorf("unexpected markdown links %+v", resp.Digests)
	}
	if resp.Digests[0].Display != "May 02, 2024" {
		t.Errorf("unexpected display %q", resp.Digests[0].Display)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := get(srv, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestWriteMethodsRejected(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest("POST", "/api/digests", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func digestDoc(news, forum string) string {
	return `<html><body><div class="header"></div>` +
		`<section class="section section-news"><h2>World Tech News</h2><div class="article"><h3 class="article-title">` + news + `</h3></div></section>` +
		`<section class="section section-forum"><h2>Community</h2><div class="article"><h3 class="article-title">` + forum + `</h3></div></section>` +
		`</body></html>`
}

func TestIndexFilters(t *testing.T) {
	srv, store := newTestServer(t, nil)
	srv.now = func() time.Time { return time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC) }
	store.Write("2024-05-10", digestDoc("Rust compiler release", "Show HN: tiny db"))
	store.Write("2024-05-08", digestDoc("Chip export rules", "Ask HN: rust jobs"))
	store.Write("2024-04-01", digestDoc("Old news", "Old thread"))

	tests := []struct {
		name    string
		query   string
		want    []string
		notWant []string
	}{
		{"all", "/", []string{"Rust compiler release", "Chip export rules", "Old news"}, nil},
		{"today", "/?range=today", []string{"Rust compiler release"}, []string{"Chip export rules", "Old news"}},
		{"week", "/?range=week", []string{"Rust compiler release", "Chip export rules"}, []string{"Old news"}},
		{"exact date", "/?date=2024-04-01", []string{"Old news"}, []string{"Rust compiler release"}},
		{"section", "/?section=forum", []string{"Show HN: tiny db", "Old thread"}, []string{"Rust compiler release", "Old news"}},
		{"keyword", "/?q=RUST", []string{"Rust compiler release", "Ask HN: rust jobs"}, []string{"Show HN: tiny db", "Chip export rules", "Old news"}},
		{"section and keyword", "/?section=news&q=rust", []string{"Rust compiler release"}, []string{"Ask HN: rust jobs"}},
		{"unknown range shows all", "/?range=decade", []string{"Old news"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(srv, tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			body := rec.Body.String()
			for _, w := range tt.want {
				if !strings.Contains(body, w) {
					t.Errorf("expected %q in page", w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(body, w) {
					t.Errorf("did not expect %q in page", w)
				}
			}
		})
	}
}

func TestIndexFilterNoMatch(t *testing.T) {
	srv, store := newTestServer(t, nil)
	store.Write("2024-05-10", digestDoc("a", "b"))

	body := get(srv, "/?q=nothing-like-this").Body.String()
	if !strings.Contains(body, "No digests match these filters") {
		t.Error("expected filtered empty state")
	}
	if strings.Contains(body, "No digests yet") {
		t.Error("archive is not empty")
	}
}

func TestIndexContentsLinks(t *testing.T) {
	srv, store := newTestServer(t, nil)
	store.Write("2024-05-10", digestDoc("a", "b"))
	store.Write("2024-05-09", digestDoc("c", "d"))

	body := get(srv, "/").Body.String()
	for _, anchor := range []string{`href="#digest-2024-05-10"`, `id="digest-2024-05-10"`, `href="#digest-2024-05-09"`} {
		if !strings.Contains(body, anchor) {
			t.Errorf("missing %s", anchor)
		}
	}
}
