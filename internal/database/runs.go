package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned by GetRun for unknown IDs.
var ErrRunNotFound = errors.New("run not found")

var runColumns = []string{
	"id", "period_id", "started_at", "finished_at",
	"news_count", "forum_count", "paper_count", "failed_sources",
	"tier_source", "tier_remote", "tier_local", "tier_fallback",
	"archive_path",
}

// InsertRun records a run and returns its ID. A new UUID is assigned when
// r.ID is empty.
func (db *DB) InsertRun(r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	failed := r.FailedSources
	if failed == nil {
		failed = []string{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return "", fmt.Errorf("encoding failed sources: %w", err)
	}

	query, args, err := sq.Insert("runs").
		Columns(runColumns...).
		Values(
			r.ID, r.PeriodID, formatTime(r.StartedAt), formatTime(r.FinishedAt),
			r.NewsCount, r.ForumCount, r.PaperCount, string(failedJSON),
			r.TierSource, r.TierRemote, r.TierLocal, r.TierFallback,
			r.ArchivePath,
		).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building insert: %w", err)
	}

	if _, err := db.conn.Exec(query, args...); err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return r.ID, nil
}

// GetRun returns the run with the given ID.
func (db *DB) GetRun(id string) (*Run, error) {
	runs, err := db.selectRuns(sq.Select(runColumns...).From("runs").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return &runs[0], nil
}

// GetLatestRuns returns up to limit runs, most recent first.
func (db *DB) GetLatestRuns(limit int) ([]Run, error) {
	q := sq.Select(runColumns...).From("runs").OrderBy("started_at DESC", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return db.selectRuns(q)
}

// GetRunsForPeriod returns all runs for a digest date, most recent first.
func (db *DB) GetRunsForPeriod(periodID string) ([]Run, error) {
	return db.selectRuns(sq.Select(runColumns...).
		From("runs").
		Where(sq.Eq{"period_id": periodID}).
		OrderBy("started_at DESC", "id"))
}

// GetStats returns aggregate history statistics.
func (db *DB) GetStats() (*Stats, error) {
	query, args, err := sq.Select(
		"COUNT(*)",
		"COUNT(DISTINCT period_id)",
		"COALESCE(SUM(news_count + forum_count + paper_count), 0)",
		"COALESCE(SUM(tier_fallback), 0)",
	).From("runs").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building stats query: %w", err)
	}

	s := &Stats{}
	if err := db.conn.QueryRow(query, args...).Scan(&s.Runs, &s.Periods, &s.TotalArticles, &s.Fallbacks); err != nil {
		return nil, fmt.Errorf("reading stats: %w", err)
	}

	latest, err := db.GetLatestRuns(1)
	if err != nil {
		return nil, err
	}
	if len(latest) > 0 {
		s.LastRun = &latest[0]
	}
	return s, nil
}

func (db *DB) selectRuns(q sq.SelectBuilder) ([]Run, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		r                 Run
		started, finished string
		failedJSON        sql.NullString
		archivePath       sql.NullString
	)
	if err := rows.Scan(
		&r.ID, &r.PeriodID, &started, &finished,
		&r.NewsCount, &r.ForumCount, &r.PaperCount, &failedJSON,
		&r.TierSource, &r.TierRemote, &r.TierLocal, &r.TierFallback,
		&archivePath,
	); err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}

	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	r.ArchivePath = archivePath.String
	if failedJSON.Valid && failedJSON.String != "" {
		if err := json.Unmarshal([]byte(failedJSON.String), &r.FailedSources); err != nil {
			return Run{}, fmt.Errorf("decoding failed sources for run %s: %w", r.ID, err)
		}
	}
	return r, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
