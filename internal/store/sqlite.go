package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nutrisync/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT    NOT NULL,
	finished_at TEXT    NOT NULL,
	strategy    TEXT    NOT NULL,
	fetched     INTEGER NOT NULL,
	appended    INTEGER NOT NULL,
	updated     INTEGER NOT NULL,
	dry_run     INTEGER NOT NULL,
	error       TEXT    NOT NULL DEFAULT ''
)`

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and makes
// sure the runs table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; the job never overlaps anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts run and stores the assigned row ID back into it.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, finished_at, strategy, fetched, appended, updated, dry_run, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Strategy,
		run.Fetched,
		run.Appended,
		run.Updated,
		boolToInt(run.DryRun),
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	run.ID = id
	return nil
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, strategy, fetched, appended, updated, dry_run, error
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var (
			r                 domain.RunRecord
			started, finished string
			dryRun            int
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Strategy,
			&r.Fetched, &r.Appended, &r.Updated, &dryRun, &r.Error); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %d: started_at: %w", r.ID, err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("run %d: finished_at: %w", r.ID, err)
		}
		r.DryRun = dryRun != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
