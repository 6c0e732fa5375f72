// Package store defines storage interfaces for the local summary archive and
// the run history.
package store

import (
	"context"

	"nutrisync/internal/domain"
)

// SummaryArchive keeps every daily summary the job has fetched, independent
// of what ended up in the spreadsheet.
type SummaryArchive interface {
	// WriteSummaries merges summaries into the archive. A summary for a date
	// already archived replaces the stored one.
	WriteSummaries(ctx context.Context, summaries []domain.Summary) error

	// ReadSummaries returns the archived summaries for a calendar year,
	// sorted by date.
	ReadSummaries(ctx context.Context, year int) ([]domain.Summary, error)

	// ListYears returns the years that have archived data, ascending.
	ListYears(ctx context.Context) ([]int, error)
}

// RunStore persists job run records.
type RunStore interface {
	// SaveRun inserts a run and sets its ID.
	SaveRun(ctx context.Context, run *domain.RunRecord) error

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}
