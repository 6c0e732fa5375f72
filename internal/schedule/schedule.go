// Package schedule drives the sync job from a cron expression.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"nutrisync/internal/job"
)

// DefaultSpec runs the job daily at midnight.
const DefaultSpec = "0 0 * * *"

// Runner is the job surface the scheduler triggers.
type Runner interface {
	Run(ctx context.Context, opts job.RunOptions) (*job.Result, error)
}

// Options configures a Scheduler.
type Options struct {
	Spec         string
	Location     *time.Location
	RunAtStartup bool
	Log          *slog.Logger
}

// Scheduler triggers the runner on a cron schedule. Run errors are logged;
// the next tick is the retry.
type Scheduler struct {
	runner       Runner
	spec         string
	runAtStartup bool
	log          *slog.Logger
	cron         *cron.Cron
}

// New validates the cron spec and returns an unstarted Scheduler.
func New(runner Runner, opts Options) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if _, err := cron.ParseStandard(opts.Spec); err != nil {
		return nil, fmt.Errorf("parsing cron spec %q: %w", opts.Spec, err)
	}

	log := opts.Log.With("component", "scheduler")
	return &Scheduler{
		runner:       runner,
		spec:         opts.Spec,
		runAtStartup: opts.RunAtStartup,
		log:          log,
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cronLogger{log}),
		),
	}, nil
}

// Start registers the job, optionally runs it once immediately, and blocks
// until ctx is cancelled. It then stops the cron and waits for an in-flight
// run to return.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.trigger(ctx, "cron") }); err != nil {
		return fmt.Errorf("registering job: %w", err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "spec", s.spec, "next_run", s.Next())

	if s.runAtStartup {
		s.trigger(ctx, "startup")
	}

	<-ctx.Done()
	s.log.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// Next returns the next scheduled run time, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) trigger(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	s.log.Info("triggering sync", "reason", reason)

	_, err := s.runner.Run(ctx, job.RunOptions{})
	switch {
	case errors.Is(err, job.ErrRunInProgress):
		s.log.Warn("previous sync still running, skipping", "reason", reason)
	case err != nil:
		s.log.Error("sync failed", "reason", reason, "error", err)
	}
	s.log.Info("next sync scheduled", "next_run", s.Next())
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
