package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/TobiSchelling/techdigest/internal/archive"
	"github.com/TobiSchelling/techdigest/internal/article"
	"github.com/TobiSchelling/techdigest/internal/collect"
	"github.com/TobiSchelling/techdigest/internal/config"
	"github.com/TobiSchelling/techdigest/internal/database"
	"github.com/TobiSchelling/techdigest/internal/enrich"
	"github.com/TobiSchelling/techdigest/internal/render"
	"github.com/TobiSchelling/techdigest/internal/summarize"
)

var (
	// ErrAllSourcesFailed is returned when no source produced a result.
	ErrAllSourcesFailed = errors.New("all sources failed")

	// ErrInvalidDate is returned for a digest date that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid digest date")
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Date         string
	Steps        []StepResult
	Digest       article.Digest
	Collected    *collect.Result
	Enrichment   enrich.Stats
	Summaries    summarize.Stats
	ArchivePath  string
	MarkdownPath string
	RunID        string
}

// History records finished runs.
type History interface {
	InsertRun(r database.Run) (string, error)
}

// Pipeline orchestrates collect, normalize, enrich, summarize, render and
// persist for one digest date.
type Pipeline struct {
	collector  *collect.Collector
	enricher   *enrich.Enricher
	summarizer *summarize.Summarizer
	store      *archive.Store
	history    History
	markdown   bool
	logger     *slog.Logger
	now        func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithHistory records each successful run in h.
func WithHistory(h History) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithoutEnrichment skips page lookups for images and body text.
func WithoutEnrichment() Option {
	return func(p *Pipeline) { p.enricher = nil }
}

// WithMarkdown also writes the Markdown export next to each digest.
func WithMarkdown(enabled bool) Option {
	return func(p *Pipeline) { p.markdown = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline from config.
func New(cfg *config.Config, creds config.Credentials, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	collector := collect.NewCollector(logger, collect.BuildSources(cfg, creds, logger)...)

	var enricher *enrich.Enricher
	if cfg.Enrichment.Enabled {
		e := cfg.Enrichment
		enricher = enrich.New(enrich.Options{
			Workers:       e.Workers,
			Timeout:       e.Timeout,
			FetchContent:  e.FetchContent,
			RespectRobots: e.RespectRobots,
			UserAgent:     e.UserAgent,
		}, nil, logger)
	}

	tiers, err := summarize.BuildTiers(cfg.Summarization, creds, &http.Client{}, logger)
	if err != nil {
		return nil, fmt.Errorf("building summarizer: %w", err)
	}
	summarizer := summarize.New(tiers, summarize.OptionsFromConfig(cfg.Summarization), logger)

	store := archive.NewStore(cfg.GetArchiveDir())

	opts = append([]Option{WithMarkdown(cfg.Output.Markdown)}, opts...)
	return NewWithDeps(collector, enricher, summarizer, store, logger, opts...), nil
}

// NewWithDeps creates a pipeline from already built stages. A nil enricher
// disables enrichment.
func NewWithDeps(collector *collect.Collector, enricher *enrich.Enricher, summarizer *summarize.Summarizer, store *archive.Store, logger *slog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		collector:  collector,
		enricher:   enricher,
		summarizer: summarizer,
		store:      store,
		logger:     logger.With("component", "pipeline"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) resolveDate(date string) (string, error) {
	if date == "" {
		return p.now().Format("2006-01-02"), nil
	}
	if !article.ValidDate(date) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return date, nil
}

// Run executes the full pipeline for date (today when empty). It fails when
// every source failed or the digest could not be rendered or written.
func (p *Pipeline) Run(ctx context.Context, date string) (*Result, error) {
	date, err := p.resolveDate(date)
	if err != nil {
		return nil, err
	}
	started := p.now()
	r := &Result{Date: date}

	// Step 1: Collect
	step := p.runCollect(ctx, r)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r, step.Err
	}

	// Step 2: Normalize
	r.Steps = append(r.Steps, p.runNormalize(r))

	// Step 3: Enrich
	r.Steps = append(r.Steps, p.runEnrich(ctx, r))

	// Step 4: Summarize
	r.Steps = append(r.Steps, p.runSummarize(ctx, r))

	// Step 5: Render
	html, step := p.runRender(r)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r, step.Err
	}

	// Step 6: Persist
	step = p.runPersist(r, html)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r, step.Err
	}

	p.recordRun(r, started)
	return r, nil
}

// DryRun collects and normalizes without enriching, summarizing or writing
// anything, and reports what a real run would produce.
func (p *Pipeline) DryRun(ctx context.Context, date string) (*Result, error) {
	date, err := p.resolveDate(date)
	if err != nil {
		return nil, err
	}
	r := &Result{Date: date}

	step := p.runCollect(ctx, r)
	step.Summary = "[dry-run] " + step.Summary
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r, step.Err
	}

	step = p.runNormalize(r)
	step.Summary = "[dry-run] " + step.Summary
	r.Steps = append(r.Steps, step)

	missing := 0
	for _, sec := range article.Sections() {
		for _, a := range r.Digest.Articles(sec) {
			if a.Summary == "" {
				missing++
			}
		}
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Summarize",
		Summary: fmt.Sprintf("[dry-run] %d articles need a summary", missing),
	})
	r.Steps = append(r.Steps, StepResult{
		Name:    "Persist",
		Summary: fmt.Sprintf("[dry-run] Would write %s", p.store.PathFor(date)),
	})
	return r, nil
}

func (p *Pipeline) runCollect(ctx context.Context, r *Result) StepResult {
	p.logger.Info("step 1/6: collecting", "sources", len(p.collector.Sources()))
	res := p.collector.Collect(ctx)
	r.Collected = res

	if res.AllFailed() {
		return StepResult{
			Name: "Collect",
			Err:  fmt.Errorf("%w: %s", ErrAllSourcesFailed, strings.Join(res.Failed, ", ")),
		}
	}

	summary := fmt.Sprintf("Collected %d records from %d sources", res.Total(), res.Sources-len(res.Failed))
	if len(res.Failed) > 0 {
		summary += fmt.Sprintf(" (failed: %s)", strings.Join(res.Failed, ", "))
	}
	return StepResult{Name: "Collect", Summary: summary}
}

func (p *Pipeline) runNormalize(r *Result) StepResult {
	p.logger.Info("step 2/6: normalizing")
	r.Digest = article.NewDigest(r.Date, p.now())
	for _, sec := range article.Sections() {
		if arts := article.NormalizeAll(sec, r.Collected.Records[sec]); len(arts) > 0 {
			r.Digest.Sections[sec] = arts
		}
	}
	return StepResult{
		Name: "Normalize",
		Summary: fmt.Sprintf("%d news, %d forum, %d papers",
			len(r.Digest.Articles(article.SectionNews)),
			len(r.Digest.Articles(article.SectionForum)),
			len(r.Digest.Articles(article.SectionPapers))),
	}
}

func (p *Pipeline) runEnrich(ctx context.Context, r *Result) StepResult {
	if p.enricher == nil {
		return StepResult{Name: "Enrich", Summary: "Skipped"}
	}
	p.logger.Info("step 3/6: enriching")

	all, bounds := flatten(r.Digest)
	enriched, stats := p.enricher.Enrich(ctx, all)
	unflatten(&r.Digest, enriched, bounds)
	r.Enrichment = stats

	return StepResult{
		Name: "Enrich",
		Summary: fmt.Sprintf("%d images, %d bodies, %d skipped, %d failed",
			stats.Images, stats.Content, stats.Skipped, stats.Failed),
	}
}

func (p *Pipeline) runSummarize(ctx context.Context, r *Result) StepResult {
	p.logger.Info("step 4/6: summarizing")

	all, bounds := flatten(r.Digest)
	summarized, stats := p.summarizer.SummarizeAll(ctx, all)
	unflatten(&r.Digest, summarized, bounds)
	r.Summaries = stats

	return StepResult{
		Name: "Summarize",
		Summary: fmt.Sprintf("%d from source, %d remote, %d local, %d fallback",
			stats.Source, stats.Remote, stats.Local, stats.Fallback),
	}
}

func (p *Pipeline) runRender(r *Result) (string, StepResult) {
	p.logger.Info("step 5/6: rendering")
	html, err := render.Render(r.Digest)
	if err != nil {
		return "", StepResult{Name: "Render", Err: fmt.Errorf("rendering digest: %w", err)}
	}
	return html, StepResult{
		Name:    "Render",
		Summary: fmt.Sprintf("Rendered %d articles", r.Digest.Count()),
	}
}

func (p *Pipeline) runPersist(r *Result, html string) StepResult {
	p.logger.Info("step 6/6: persisting")
	path, err := p.store.Write(r.Date, html)
	if err != nil {
		return StepResult{Name: "Persist", Err: fmt.Errorf("writing digest: %w", err)}
	}
	r.ArchivePath = path

	if p.markdown {
		md, err := render.Markdown(r.Digest)
		if err == nil {
			r.MarkdownPath, err = p.store.WriteMarkdown(r.Date, md)
		}
		if err != nil {
			p.logger.Warn("markdown export failed", "date", r.Date, "error", err)
		}
	}

	return StepResult{Name: "Persist", Summary: "Wrote " + path}
}

func (p *Pipeline) recordRun(r *Result, started time.Time) {
	if p.history == nil {
		return
	}
	s := r.Summaries
	run := database.Run{
		PeriodID:      r.Date,
		StartedAt:     started,
		FinishedAt:    p.now(),
		NewsCount:     len(r.Digest.Articles(article.SectionNews)),
		ForumCount:    len(r.Digest.Articles(article.SectionForum)),
		PaperCount:    len(r.Digest.Articles(article.SectionPapers)),
		FailedSources: r.Collected.Failed,
		TierSource:    s.Source,
		TierRemote:    s.Remote,
		TierLocal:     s.Local,
		TierFallback:  s.Fallback,
		ArchivePath:   r.ArchivePath,
	}
	id, err := p.history.InsertRun(run)
	if err != nil {
		p.logger.Warn("recording run history failed", "date", r.Date, "error", err)
		return
	}
	r.RunID = id
}

type span struct {
	section    article.Section
	start, end int
}

// flatten concatenates sections in display order so a stage can process
// every article in one pass.
func flatten(d article.Digest) ([]article.Article, []span) {
	var all []article.Article
	var bounds []span
	for _, sec := range article.Sections() {
		arts := d.Articles(sec)
		if len(arts) == 0 {
			continue
		}
		bounds = append(bounds, span{section: sec, start: len(all), end: len(all) + len(arts)})
		all = append(all, arts...)
	}
	return all, bounds
}

func unflatten(d *article.Digest, all []article.Article, bounds []span) {
	for _, b := range bounds {
		d.Sections[b.section] = all[b.start:b.end:b.end]
	}
}
