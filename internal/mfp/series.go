package mfp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"nutrisync/internal/domain"
	"nutrisync/internal/nutrition"
)

var _ CheckinHistoryFetcher = (*SeriesFetcher)(nil)

type seriesResponse struct {
	Data []struct {
		Date  string  `json:"date"`
		Total float64 `json:"total"`
	} `json:"data"`
}

// SeriesFetcher reads the four single-nutrient report series concurrently
// and merges them into per-date records.
type SeriesFetcher struct {
	client *Client
	opts   Options
}

// NewSeriesFetcher creates a SeriesFetcher.
func NewSeriesFetcher(c *Client, opts Options) *SeriesFetcher {
	return &SeriesFetcher{client: c, opts: opts}
}

// Name returns the strategy identifier.
func (f *SeriesFetcher) Name() string { return StrategySeries }

// FetchCheckinHistory fetches all four series in parallel. The first failure
// cancels the others and fails the whole fetch.
func (f *SeriesFetcher) FetchCheckinHistory(ctx context.Context) ([]domain.DailyRecord, error) {
	g, gctx := errgroup.WithContext(ctx)
	series := make([][]domain.RawNutritionEntry, len(domain.AllNutrients))

	for i, n := range domain.AllNutrients {
		g.Go(func() error {
			points, err := f.fetchSeries(gctx, n)
			if err != nil {
				return err
			}
			series[i] = points
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []domain.RawNutritionEntry
	for _, s := range series {
		all = append(all, s...)
	}
	return MergeSeries(all, f.opts.now(), f.opts.logger()), nil
}

func (f *SeriesFetcher) fetchSeries(ctx context.Context, n domain.Nutrient) ([]domain.RawNutritionEntry, error) {
	path := fmt.Sprintf("/reports/results/nutrition/%s/%d.json", n, f.opts.LookbackDays)

	var resp seriesResponse
	if err := f.client.get(ctx, path, "series:"+n.String(), &resp); err != nil {
		return nil, err
	}

	points := make([]domain.RawNutritionEntry, 0, len(resp.Data))
	for _, p := range resp.Data {
		points = append(points, domain.RawNutritionEntry{Date: p.Date, Nutrient: n, Total: p.Total})
	}
	return points, nil
}

// MergeSeries resolves each point's year against today and merges the points
// into one record per date, sorted ascending. Dates are rendered YYYY/MM/DD.
// A nutrient with no point for a date stays zero. Points whose date cannot be
// resolved are logged and dropped.
func MergeSeries(points []domain.RawNutritionEntry, today time.Time, log *slog.Logger) []domain.DailyRecord {
	if log == nil {
		log = slog.Default()
	}

	byDate := make(map[time.Time]*domain.Nutrients)
	for _, p := range points {
		t, err := resolveSeriesDate(p.Date, today)
		if err != nil {
			log.Warn("skipping series point", "nutrient", p.Nutrient.String(), "date", p.Date, "error", err)
			continue
		}
		totals, ok := byDate[t]
		if !ok {
			totals = &domain.Nutrients{}
			byDate[t] = totals
		}
		totals.Set(p.Nutrient, totals.Get(p.Nutrient)+p.Total)
	}

	dates := make([]time.Time, 0, len(byDate))
	for t := range byDate {
		dates = append(dates, t)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	records := make([]domain.DailyRecord, len(dates))
	for i, t := range dates {
		records[i] = domain.DailyRecord{
			Date:    t.Format(nutrition.ResolvedLayout),
			Entries: []domain.Nutrients{*byDate[t]},
		}
	}
	return records
}

// resolveSeriesDate accepts a month/day point, or a point that already
// carries a year.
func resolveSeriesDate(s string, today time.Time) (time.Time, error) {
	if t, err := nutrition.InferYear(s, today); err == nil {
		return t, nil
	}
	return nutrition.ParseDate(s)
}
