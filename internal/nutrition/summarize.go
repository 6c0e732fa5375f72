package nutrition

import (
	"log/slog"
	"sort"
	"time"

	"nutrisync/internal/domain"
)

// Fold adds up a day's raw entries. An empty list folds to zero totals.
func Fold(entries []domain.Nutrients) domain.Nutrients {
	var total domain.Nutrients
	for _, e := range entries {
		total = total.Add(e)
	}
	return total
}

// Summarize folds each record into one Summary with a canonical date.
// Records that resolve to the same calendar date are merged by addition so
// the result holds one summary per date, sorted ascending. Records with an
// unparseable date are logged and skipped.
func Summarize(records []domain.DailyRecord, log *slog.Logger) []domain.Summary {
	if log == nil {
		log = slog.Default()
	}

	type day struct {
		at      time.Time
		summary domain.Summary
	}
	byDate := make(map[string]*day, len(records))

	for _, r := range records {
		t, err := ParseDate(r.Date)
		if err != nil {
			log.Warn("skipping record with unparseable date", "date", r.Date, "error", err)
			continue
		}
		key := t.Format(CanonicalLayout)
		totals := Fold(r.Entries)

		if d, ok := byDate[key]; ok {
			d.summary.Nutrients = d.summary.Nutrients.Add(totals)
			continue
		}
		byDate[key] = &day{at: t, summary: domain.Summary{Date: key, Nutrients: totals}}
	}

	days := make([]*day, 0, len(byDate))
	for _, d := range byDate {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].at.Before(days[j].at) })

	out := make([]domain.Summary, len(days))
	for i, d := range days {
		out[i] = d.summary
	}
	return out
}
