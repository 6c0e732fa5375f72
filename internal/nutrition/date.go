// Package nutrition folds fetched nutrition records into per-day summaries
// and owns the date conventions shared by the fetcher and the reconciler.
package nutrition

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nutrisync/internal/domain"
)

// CanonicalLayout is the MM/DD/YYYY form used for every date written to or
// compared against the sheet.
const CanonicalLayout = "01/02/2006"

// ResolvedLayout is the YYYY/MM/DD form produced by year inference.
const ResolvedLayout = "2006/01/02"

var (
	errParts   = errors.New("expected three date components")
	errNumeric = errors.New("date components must be numeric")
	errYear    = errors.New("year must have four digits")
	errRange   = errors.New("month or day out of range")
)

// splitDate normalises separators to "/" and splits into components.
func splitDate(s string) []string {
	return strings.Split(strings.ReplaceAll(strings.TrimSpace(s), "-", "/"), "/")
}

func atoiAll(parts []string) ([]int, bool) {
	out := make([]int, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

// ParseDate parses a fully resolved date in either YYYY/MM/DD or MM/DD/YYYY
// order. Separators may be "-" or "/" interchangeably. A four-digit first
// component selects year-first order.
func ParseDate(s string) (time.Time, error) {
	parts := splitDate(s)
	if len(parts) != 3 {
		return time.Time{}, &domain.ParseError{Field: "date", Value: s, Err: errParts}
	}
	nums, ok := atoiAll(parts)
	if !ok {
		return time.Time{}, &domain.ParseError{Field: "date", Value: s, Err: errNumeric}
	}

	var y, m, d int
	yearPart := parts[2]
	if len(parts[0]) == 4 {
		y, m, d = nums[0], nums[1], nums[2]
		yearPart = parts[0]
	} else {
		m, d, y = nums[0], nums[1], nums[2]
	}
	if len(yearPart) != 4 {
		return time.Time{}, &domain.ParseError{Field: "date", Value: s, Err: errYear}
	}

	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, &domain.ParseError{Field: "date", Value: s, Err: errRange}
	}
	return t, nil
}

// Canonicalize renders a source date as zero-padded MM/DD/YYYY. It is
// idempotent: a canonical input is returned unchanged.
func Canonicalize(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(CanonicalLayout), nil
}

// InferYear resolves a month/day-only date against today. A month/day later
// in the calendar than today's is assumed to belong to the previous year,
// anything else to the current year, i.e. the most recent occurrence that is
// not in the future.
func InferYear(partial string, today time.Time) (time.Time, error) {
	parts := splitDate(partial)
	if len(parts) != 2 {
		return time.Time{}, &domain.ParseError{Field: "partial date", Value: partial, Err: fmt.Errorf("expected MM/DD")}
	}
	nums, ok := atoiAll(parts)
	if !ok {
		return time.Time{}, &domain.ParseError{Field: "partial date", Value: partial, Err: errNumeric}
	}
	m, d := nums[0], nums[1]
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, &domain.ParseError{Field: "partial date", Value: partial, Err: errRange}
	}

	year := today.Year()
	if m > int(today.Month()) || (m == int(today.Month()) && d > today.Day()) {
		year--
	}

	t := time.Date(year, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if int(t.Month()) != m || t.Day() != d {
		// 02/29 in a non-leap year.
		return time.Time{}, &domain.ParseError{Field: "partial date", Value: partial, Err: errRange}
	}
	return t, nil
}
