package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(period string, started time.Time) Run {
	return Run{
		PeriodID:      period,
		StartedAt:     started,
		FinishedAt:    started.Add(90 * time.Second),
		NewsCount:     5,
		ForumCount:    10,
		PaperCount:    3,
		FailedSources: []string{"Reddit"},
		TierSource:    4,
		TierRemote:    12,
		TierFallback:  2,
		ArchivePath:   "/tmp/archive/" + period + ".html",
	}
}

func TestInsertAndGetRun(t *testing.T) {
	db := openTestDB(t)
	started := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)

	id, err := db.InsertRun(sampleRun("2024-05-01", started))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("expected a uuid, got %q", id)
	}

	got, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.PeriodID != "2024-05-01" || got.Total() != 18 {
		t.Errorf("unexpected run %+v", got)
	}
	if !got.StartedAt.Equal(started) || got.Duration() != 90*time.Second {
		t.Errorf("timestamps not preserved: %v, %v", got.StartedAt, got.Duration())
	}
	if len(got.FailedSources) != 1 || got.FailedSources[0] != "Reddit" {
		t.Errorf("unexpected failed sources %v", got.FailedSources)
	}
	if got.TierRemote != 12 || got.TierFallback != 2 {
		t.Errorf("tier counts not preserved: %+v", got)
	}
}

func TestInsertRunKeepsGivenID(t *testing.T) {
	db := openTestDB(t)
	r := sampleRun("2024-05-01", time.Now())
	r.ID = "fixed-id"
	id, err := db.InsertRun(r)
	if err != nil || id != "fixed-id" {
		t.Fatalf("got %q, %v", id, err)
	}
	if _, err := db.InsertRun(r); err == nil {
		t.Error("expected duplicate id to fail")
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestGetLatestRuns(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := db.InsertRun(sampleRun("2024-05-0"+string(rune('1'+i)), base.Add(time.Duration(i)*24*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := db.GetLatestRuns(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].PeriodID != "2024-05-03" || runs[1].PeriodID != "2024-05-02" {
		t.Errorf("unexpected order: %s, %s", runs[0].PeriodID, runs[1].PeriodID)
	}

	all, _ := db.GetLatestRuns(0)
	if len(all) != 3 {
		t.Errorf("limit 0 should return everything, got %d", len(all))
	}
}

func TestGetRunsForPeriod(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	db.InsertRun(sampleRun("2024-05-01", base))
	db.InsertRun(sampleRun("2024-05-01", base.Add(time.Hour)))
	db.InsertRun(sampleRun("2024-05-02", base.Add(24*time.Hour)))

	runs, err := db.GetRunsForPeriod("2024-05-01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Error("expected most recent first")
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)

	empty, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty.Runs != 0 || empty.LastRun != nil {
		t.Errorf("expected empty stats, got %+v", empty)
	}

	base := time.Date(2024, 5, 1, 7, 0, 0, 0, time.UTC)
	db.InsertRun(sampleRun("2024-05-01", base))
	db.InsertRun(sampleRun("2024-05-01", base.Add(time.Hour)))
	db.InsertRun(sampleRun("2024-05-02", base.Add(24*time.Hour)))

	s, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Runs != 3 || s.Periods != 2 || s.TotalArticles != 54 || s.Fallbacks != 6 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.LastRun == nil || s.LastRun.PeriodID != "2024-05-02" {
		t.Errorf("unexpected last run %+v", s.LastRun)
	}
}

func TestNilFailedSourcesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	r := sampleRun("2024-05-01", time.Now())
	r.FailedSources = nil
	id, _ := db.InsertRun(r)
	got, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.FailedSources) != 0 {
		t.Errorf("expected no failed sources, got %v", got.FailedSources)
	}
}
