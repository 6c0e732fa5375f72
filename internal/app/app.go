// Package app builds the sync job and its dependencies from configuration.
// Both binaries share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"nutrisync/internal/config"
	"nutrisync/internal/job"
	"nutrisync/internal/mfp"
	"nutrisync/internal/sheets"
	"nutrisync/internal/store"
)

// App holds the wired components. Archive and Runs are nil when their
// storage path is not configured.
type App struct {
	Config  *config.Config
	Fetcher mfp.CheckinHistoryFetcher
	Sheet   *sheets.Client
	Archive *store.ParquetStore
	Runs    *store.SQLiteStore
	Job     *job.Job
}

// New validates cfg and wires every component.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fetcher, err := NewFetcher(cfg, log)
	if err != nil {
		return nil, err
	}

	sheet, err := sheets.NewClient(ctx, sheets.Options{
		SpreadsheetID:   cfg.Sheet.SpreadsheetID,
		Tab:             cfg.Sheet.Tab,
		CredentialsJSON: cfg.Sheet.CredentialsJSON,
		CredentialsFile: cfg.Sheet.CredentialsFile,
		Log:             log,
	})
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Fetcher: fetcher, Sheet: sheet}

	if cfg.Storage.DataDir != "" {
		a.Archive = store.NewParquetStore(cfg.Storage.DataDir)
	}
	if cfg.Storage.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		if a.Runs, err = store.NewSQLiteStore(cfg.Storage.SQLitePath); err != nil {
			return nil, fmt.Errorf("opening run history: %w", err)
		}
	}

	a.Job = job.New(fetcher, sheet, a.SummaryArchive(), a.RunStore(), log)
	return a, nil
}

// NewFetcher builds only the nutrition fetcher. It needs the source section
// of cfg and nothing else.
func NewFetcher(cfg *config.Config, log *slog.Logger) (mfp.CheckinHistoryFetcher, error) {
	client := mfp.NewClient(cfg.Source.BaseURL, cfg.Source.SessionCookie, cfg.Source.Timeout)
	loc := cfg.Location()
	return mfp.New(cfg.Source.Strategy, client, mfp.Options{
		Username:     cfg.Source.Username,
		LookbackDays: cfg.Source.LookbackDays,
		Now:          func() time.Time { return time.Now().In(loc) },
		Log:          log,
	})
}

// OpenRuns opens only the run history, for read-only commands.
func OpenRuns(cfg *config.Config) (*store.SQLiteStore, error) {
	if cfg.Storage.SQLitePath == "" {
		return nil, errors.New("storage.sqlite_path is not configured")
	}
	return store.NewSQLiteStore(cfg.Storage.SQLitePath)
}

// Close releases the run history database.
func (a *App) Close() error {
	if a.Runs != nil {
		return a.Runs.Close()
	}
	return nil
}

// SummaryArchive returns the archive, or a nil interface when it is disabled.
func (a *App) SummaryArchive() store.SummaryArchive {
	if a.Archive == nil {
		return nil
	}
	return a.Archive
}

// RunStore returns the run history, or a nil interface when it is disabled.
func (a *App) RunStore() store.RunStore {
	if a.Runs == nil {
		return nil
	}
	return a.Runs
}
