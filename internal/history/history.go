// Package history keeps a small sqlite journal of automation runs, so
// "what did the last cron run actually do" is answerable without
// scrolling logs.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    dry_run BOOLEAN NOT NULL,
    modified INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

// RunRecord summarizes one automation run.
type RunRecord struct {
	ID         int64     `db:"id"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	DryRun     bool      `db:"dry_run"`
	Modified   int       `db:"modified"`
	Skipped    int       `db:"skipped"`
	Deleted    int       `db:"deleted"`
}

// Store wraps the sqlite journal.
type Store struct {
	db *sqlx.DB
}

// Open connects to (and migrates) the journal database, creating its
// directory when needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to run journal: %w", err)
	}
	if _, execErr := db.ExecContext(ctx, schema); execErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate run journal: %w", execErr)
	}
	return &Store{db: db}, nil
}

// RecordRun appends one run summary row.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	const query = `
		INSERT INTO runs (started_at, finished_at, dry_run, modified, skipped, deleted)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.StartedAt, rec.FinishedAt, rec.DryRun, rec.Modified, rec.Skipped, rec.Deleted)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs, most recent first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []RunRecord
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return out, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
