// Package job runs one nutrition sync: fetch, summarize, archive, reconcile
// against the sheet, apply, and record the run.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"nutrisync/internal/domain"
	"nutrisync/internal/mfp"
	"nutrisync/internal/nutrition"
	"nutrisync/internal/reconcile"
	"nutrisync/internal/sheets"
	"nutrisync/internal/store"
)

// ErrRunInProgress is returned by Run when another run has not finished yet.
var ErrRunInProgress = errors.New("job: run already in progress")

// RunOptions controls a single run.
type RunOptions struct {
	// DryRun computes the plan without writing to the sheet.
	DryRun bool
}

// Result is the outcome of a run. It is returned alongside a run error with
// whatever stages completed.
type Result struct {
	Summaries []domain.Summary
	Plan      domain.Plan
	Record    domain.RunRecord
}

// Job wires the fetcher to the sheet. The archive and run store are optional.
type Job struct {
	fetcher mfp.CheckinHistoryFetcher
	sheet   sheets.RowStore
	archive store.SummaryArchive
	runs    store.RunStore
	log     *slog.Logger
	now     func() time.Time

	running atomic.Bool
}

// New creates a Job. archive and runs may be nil.
func New(
	fetcher mfp.CheckinHistoryFetcher,
	sheet sheets.RowStore,
	archive store.SummaryArchive,
	runs store.RunStore,
	log *slog.Logger,
) *Job {
	if log == nil {
		log = slog.Default()
	}
	return &Job{
		fetcher: fetcher,
		sheet:   sheet,
		archive: archive,
		runs:    runs,
		log:     log.With("component", "job"),
		now:     time.Now,
	}
}

// Running reports whether a run is in flight.
func (j *Job) Running() bool {
	return j.running.Load()
}

// Fetch fetches the check-in history and folds it into daily summaries
// without touching the sheet or the stores.
func (j *Job) Fetch(ctx context.Context) ([]domain.Summary, error) {
	records, err := j.fetcher.FetchCheckinHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching check-in history: %w", err)
	}
	return nutrition.Summarize(records, j.log), nil
}

// Run performs one sync. Each stage completes before the next starts. A
// fetch or sheet failure aborts the run before anything is written.
func (j *Job) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer j.running.Store(false)

	res := &Result{Record: domain.RunRecord{
		StartedAt: j.now(),
		Strategy:  j.fetcher.Name(),
		DryRun:    opts.DryRun,
	}}
	log := j.log.With("strategy", res.Record.Strategy, "dry_run", opts.DryRun)
	log.Info("sync started")

	err := j.run(ctx, opts, res, log)

	res.Record.FinishedAt = j.now()
	if err != nil {
		res.Record.Error = err.Error()
		log.Error("sync failed", "error", err, "elapsed", res.Record.FinishedAt.Sub(res.Record.StartedAt))
	} else {
		log.Info("sync finished",
			"fetched", res.Record.Fetched,
			"appended", res.Record.Appended,
			"updated", res.Record.Updated,
			"elapsed", res.Record.FinishedAt.Sub(res.Record.StartedAt),
		)
	}
	j.record(ctx, &res.Record)
	return res, err
}

func (j *Job) run(ctx context.Context, opts RunOptions, res *Result, log *slog.Logger) error {
	summaries, err := j.Fetch(ctx)
	if err != nil {
		return err
	}
	res.Summaries = summaries
	res.Record.Fetched = len(summaries)
	log.Info("fetched summaries", "days", len(summaries))

	if j.archive != nil {
		if err := j.archive.WriteSummaries(ctx, summaries); err != nil {
			log.Warn("archiving summaries failed", "error", err)
		}
	}

	rows, err := j.sheet.ReadRows(ctx)
	if err != nil {
		return fmt.Errorf("reading sheet: %w", err)
	}

	res.Plan = reconcile.Build(rows, summaries)
	appends, updates := res.Plan.Counts()
	log.Info("reconciled", "rows", len(rows), "appends", appends, "updates", updates)

	if opts.DryRun || res.Plan.Empty() {
		return nil
	}
	if err := j.sheet.Apply(ctx, res.Plan); err != nil {
		return fmt.Errorf("writing sheet: %w", err)
	}
	res.Record.Appended, res.Record.Updated = appends, updates
	return nil
}

// record persists the run even if ctx has been cancelled.
func (j *Job) record(ctx context.Context, rec *domain.RunRecord) {
	if j.runs == nil {
		return
	}
	if err := j.runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		j.log.Warn("recording run failed", "error", err)
	}
}
