package database

import "time"

// Run is the metadata recorded for one pipeline run. Articles themselves
// are never stored.
type Run struct {
	ID            string
	PeriodID      string
	StartedAt     time.Time
	FinishedAt    time.Time
	NewsCount     int
	ForumCount    int
	PaperCount    int
	FailedSources []string
	TierSource    int
	TierRemote    int
	TierLocal     int
	TierFallback  int
	ArchivePath   string
}

// Total returns the number of articles in the run's digest.
func (r Run) Total() int {
	return r.NewsCount + r.ForumCount + r.PaperCount
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Stats contains aggregate history statistics.
type Stats struct {
	Runs          int
	Periods       int
	TotalArticles int
	Fallbacks     int
	LastRun       *Run
}
