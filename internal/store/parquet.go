package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"nutrisync/internal/domain"
	"nutrisync/internal/nutrition"
)

// Compile-time interface check.
var _ SummaryArchive = (*ParquetStore)(nil)

// ParquetStore implements SummaryArchive using one Parquet file per year.
type ParquetStore struct {
	DataDir string
	now     func() time.Time
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, now: time.Now}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// SummaryRecord is the Parquet schema for one archived day.
type SummaryRecord struct {
	// Date is the canonical MM/DD/YYYY form written to the sheet.
	Date       string  `parquet:"date"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, midnight UTC
	Kcal       float64 `parquet:"kcal"`
	Carbs      float64 `parquet:"carbs"`
	Fat        float64 `parquet:"fat"`
	Protein    float64 `parquet:"protein"`
	ArchivedAt int64   `parquet:"archived_at,timestamp(millisecond)"` // Unix ms
}

// ---------------------------------------------------------------------------
// SummaryArchive implementation
// ---------------------------------------------------------------------------

// WriteSummaries writes summaries to Parquet files grouped by year at:
//
//	<DataDir>/nutrition/<YYYY>.parquet
//
// Summaries whose date does not parse are rejected before anything is written.
func (s *ParquetStore) WriteSummaries(_ context.Context, summaries []domain.Summary) error {
	if len(summaries) == 0 {
		return nil
	}

	archivedAt := s.now().UnixMilli()
	groups := make(map[int][]SummaryRecord)
	for _, sum := range summaries {
		day, err := nutrition.ParseDate(sum.Date)
		if err != nil {
			return fmt.Errorf("archiving summary: %w", err)
		}
		groups[day.Year()] = append(groups[day.Year()], SummaryRecord{
			Date:       sum.Date,
			Timestamp:  day.UnixMilli(),
			Kcal:       sum.Kcal,
			Carbs:      sum.Carbs,
			Fat:        sum.Fat,
			Protein:    sum.Protein,
			ArchivedAt: archivedAt,
		})
	}

	for year, records := range groups {
		path := s.summaryPath(year)

		existing, err := readParquetFile[SummaryRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading archive for %d: %w", year, err)
		}
		merged := mergeSummaryRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing archive for %d: %w", year, err)
		}
	}
	return nil
}

// ReadSummaries reads the archived summaries for year. A year with no file
// returns an empty result.
func (s *ParquetStore) ReadSummaries(_ context.Context, year int) ([]domain.Summary, error) {
	records, err := readParquetFile[SummaryRecord](s.summaryPath(year))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	summaries := make([]domain.Summary, 0, len(records))
	for _, r := range records {
		summaries = append(summaries, domain.Summary{
			Date: r.Date,
			Nutrients: domain.Nutrients{
				Kcal:    r.Kcal,
				Carbs:   r.Carbs,
				Fat:     r.Fat,
				Protein: r.Protein,
			},
		})
	}
	return summaries, nil
}

// ListYears lists the years that have an archive file.
func (s *ParquetStore) ListYears(_ context.Context) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "nutrition"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var years []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if e.IsDir() || !ok {
			continue
		}
		if y, err := strconv.Atoi(name); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// summaryPath returns the filesystem path for a year's archive file.
// Layout: <dataDir>/nutrition/<YYYY>.parquet
func (s *ParquetStore) summaryPath(year int) string {
	return filepath.Join(s.DataDir, "nutrition", strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeSummaryRecords deduplicates records by day, preferring incoming
// records over existing ones. Results are sorted by timestamp.
func mergeSummaryRecords(existing, incoming []SummaryRecord) []SummaryRecord {
	seen := make(map[int64]SummaryRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]SummaryRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
