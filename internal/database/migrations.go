package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "runs table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    period_id TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    news_count INTEGER DEFAULT 0,
    forum_count INTEGER DEFAULT 0,
    paper_count INTEGER DEFAULT 0,
    failed_sources TEXT DEFAULT '[]',
    tier_source INTEGER DEFAULT 0,
    tier_remote INTEGER DEFAULT 0,
    tier_local INTEGER DEFAULT 0,
    tier_fallback INTEGER DEFAULT 0,
    archive_path TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_period ON runs(period_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "index runs by start time",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
