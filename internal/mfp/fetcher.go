package mfp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nutrisync/internal/domain"
)

// Strategy names.
const (
	StrategyDiary  = "diary"
	StrategySeries = "series"
)

// CheckinHistoryFetcher retrieves the nutrition history for the configured
// window as one DailyRecord per reported date.
type CheckinHistoryFetcher interface {
	// Name returns the strategy identifier.
	Name() string
	// FetchCheckinHistory fetches the whole window. It returns either the
	// complete history or an error, never a partial result.
	FetchCheckinHistory(ctx context.Context) ([]domain.DailyRecord, error)
}

// Options holds the settings shared by both fetch strategies.
type Options struct {
	// Username is the diary owner, required by the diary report.
	Username string
	// LookbackDays is the window length. Zero means one calendar year for
	// the diary report; the series report requires a positive value.
	LookbackDays int
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
	Log *slog.Logger
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return slog.Default()
}

// New returns the fetcher for strategy.
func New(strategy string, c *Client, opts Options) (CheckinHistoryFetcher, error) {
	switch strategy {
	case StrategyDiary, "":
		return NewDiaryFetcher(c, opts), nil
	case StrategySeries:
		if opts.LookbackDays <= 0 {
			return nil, fmt.Errorf("series strategy requires a positive lookback, got %d", opts.LookbackDays)
		}
		return NewSeriesFetcher(c, opts), nil
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q", strategy)
	}
}
