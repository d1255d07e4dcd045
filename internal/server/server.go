package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/techdigest/internal/archive"
	"github.com/TobiSchelling/techdigest/internal/article"
	"github.com/TobiSchelling/techdigest/internal/database"
	"github.com/TobiSchelling/techdigest/internal/render"
)

//go:embed templates/*.html
var templateFS embed.FS

// History lists recorded runs.
type History interface {
	GetLatestRuns(limit int) ([]database.Run, error)
}

// Server serves the digest archive read-only.
type Server struct {
	store   *archive.Store
	history History
	pages   map[string]*template.Template
	mux     *http.ServeMux
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a new Server. history may be nil.
func New(store *archive.Store, history History, logger *slog.Logger) (*Server, error) {
	funcMap := template.FuncMap{
		"join": strings.Join,
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so its "title" and "content" blocks
	// don't collide with other pages.
	pageNames := []string{"index.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		store:   store,
		history: history,
		pages:   pages,
		mux:     http.NewServeMux(),
		logger:  logger.With("component", "server"),
		now:     time.Now,
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /digest/{file}", s.handleDigest)
	s.mux.HandleFunc("GET /api/digests", s.handleListDigests)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

type digestView struct {
	archive.Entry
	Body template.HTML
}

type sectionOption struct {
	Key   string
	Title string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		s.logger.Error("listing digests", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	f := parseFilter(r)
	now := s.now()
	digests := make([]digestView, 0, len(entries))
	for _, e := range entries {
		if !f.matchesDate(e.Date, now) {
			continue
		}
		body, err := s.store.Body(e.Date)
		if err != nil {
			s.logger.Warn("reading digest", "date", e.Date, "error", err)
			continue
		}
		body, ok := f.apply(body)
		if !ok {
			continue
		}
		// Digests are produced by the renderer, which escapes all
		// collected content.
		digests = append(digests, digestView{Entry: e, Body: template.HTML(body)}) //nolint: gosec
	}

	sections := make([]sectionOption, 0, len(article.Sections()))
	for _, sec := range article.Sections() {
		sections = append(sections, sectionOption{Key: sec.Key(), Title: sec.Title()})
	}

	s.render(w, "index.html", map[string]any{
		"Styles":   render.Stylesheet(),
		"Digests":  digests,
		"Archived": len(entries),
		"Filter":   f,
		"Ranges":   ranges,
		"Sections": sections,
		"LastRun":  s.lastRun(),
	})
}

func (s *Server) lastRun() *database.Run {
	if s.history == nil {
		return nil
	}
	runs, err := s.history.GetLatestRuns(1)
	if err != nil {
		s.logger.Warn("reading run history", "error", err)
		return nil
	}
	if len(runs) == 0 {
		return nil
	}
	return &runs[0]
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")

	if date, ok := strings.CutSuffix(file, ".md"); ok {
		md, err := s.store.ReadMarkdown(date)
		if err != nil {
			s.digestError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		fmt.Fprint(w, md)
		return
	}

	doc, err := s.store.Read(strings.TrimSuffix(file, ".html"))
	if err != nil {
		s.digestError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, doc)
}

func (s *Server) digestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, archive.ErrNotFound), errors.Is(err, archive.ErrInvalidDate):
		http.NotFound(w, r)
	default:
		s.logger.Error("reading digest", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

type digestJSON struct {
	Date     string `json:"date"`
	Display  string `json:"display"`
	URL      string `json:"url"`
	Markdown string `json:"markdown,omitempty"`
}

func (s *Server) handleListDigests(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		s.logger.Error("listing digests", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing digests failed"})
		return
	}

	out := make([]digestJSON, 0, len(entries))
	for _, e := range entries {
		d := digestJSON{Date: e.Date, Display: e.Display, URL: "/digest/" + e.Date}
		if e.HasMD {
			d.Markdown = "/digest/" + e.Date + ".md"
		}
		out = append(out, d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"digests": out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.logger.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		s.logger.Error("rendering template", "template", name, "error", err)
	}
}

// Serve listens on 127.0.0.1:port until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("server listening", "url", "http://"+addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
