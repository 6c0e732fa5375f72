// Package reconcile compares freshly computed daily summaries with the rows
// already present in the spreadsheet and decides which rows to append and
// which to update. It is pure: writing the plan is left to the caller.
package reconcile

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"nutrisync/internal/domain"
)

// NormalizeSheetDate converts a sheet date cell to the canonical MM/DD/YYYY
// key. Cells containing letters (headers, notes) are returned unchanged so
// they can never match a canonical date. Numeric cells are read as M/D/Y and
// the month and day are zero-padded. Anything that does not split into three
// components is returned trimmed but otherwise untouched.
func NormalizeSheetDate(s string) string {
	s = strings.TrimSpace(s)
	if isLabel(s) {
		return s
	}

	parts := strings.Split(strings.ReplaceAll(s, "-", "/"), "/")
	if len(parts) != 3 {
		return s
	}
	return fmt.Sprintf("%s/%s/%s", pad2(parts[0]), pad2(parts[1]), parts[2])
}

func isLabel(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func pad2(s string) string {
	if len(s) >= 2 {
		return s
	}
	return strings.Repeat("0", 2-len(s)) + s
}

var errNotNumber = errors.New("not a number")

// ParseRows turns the raw values of the date/kcal columns into SheetRows.
// Row numbers are 1-based positions in the range. A missing or non-numeric
// kcal defaults to zero; non-numeric values are also returned as ParseErrors
// so the caller can log them.
func ParseRows(values [][]any) ([]domain.SheetRow, []error) {
	rows := make([]domain.SheetRow, 0, len(values))
	var errs []error

	for i, v := range values {
		row := domain.SheetRow{Row: i + 1}
		if len(v) > 0 {
			row.Date = strings.TrimSpace(fmt.Sprint(v[0]))
		}
		if len(v) > 1 {
			kcal, err := parseNumber(v[1])
			if err != nil {
				errs = append(errs, &domain.ParseError{
					Field: fmt.Sprintf("kcal (row %d)", row.Row),
					Value: fmt.Sprint(v[1]),
					Err:   err,
				})
			}
			row.Kcal = kcal
		}
		rows = append(rows, row)
	}
	return rows, errs
}

func parseNumber(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}

	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotNumber
	}
	return f, nil
}

// Round rounds half up, matching how kcal values are compared in the sheet.
func Round(x float64) float64 {
	return math.Floor(x + 0.5)
}

// Build computes the append and update operations that bring the sheet up to
// date with summaries. Summaries with no matching row become appends in
// input order. A matching row is updated only when the rounded fresh kcal is
// strictly greater than the rounded stored kcal; stored values never go down.
func Build(rows []domain.SheetRow, summaries []domain.Summary) domain.Plan {
	existing := make(map[string]domain.SheetRow, len(rows))
	for _, r := range rows {
		key := NormalizeSheetDate(r.Date)
		if key == "" || isLabel(key) {
			continue
		}
		// Later rows win on duplicate dates.
		existing[key] = r
	}

	plan := domain.Plan{
		Appends: make([]domain.Operation, 0),
		Updates: make([]domain.Operation, 0),
	}
	for _, s := range summaries {
		row, ok := existing[s.Date]
		if !ok {
			plan.Appends = append(plan.Appends, domain.Operation{Kind: domain.Append, Summary: s})
			continue
		}
		if Round(s.Kcal) > Round(row.Kcal) {
			plan.Updates = append(plan.Updates, domain.Operation{Kind: domain.Update, Row: row.Row, Summary: s})
		}
	}
	return plan
}
