// Package domain defines the core data model shared by the fetcher,
// summarizer, reconciler, and sheet writer.
package domain

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Nutrients
// ---------------------------------------------------------------------------

// Nutrient identifies one of the four tracked nutrition totals.
type Nutrient int

const (
	Calories Nutrient = iota
	Carbs
	Fat
	Protein
)

// AllNutrients lists the nutrients in sheet column order.
var AllNutrients = []Nutrient{Calories, Carbs, Fat, Protein}

// String returns the report series name used by the nutrition source.
func (n Nutrient) String() string {
	switch n {
	case Calories:
		return "Calories"
	case Carbs:
		return "Carbs"
	case Fat:
		return "Fat"
	case Protein:
		return "Protein"
	default:
		return fmt.Sprintf("Nutrient(%d)", int(n))
	}
}

// Nutrients holds the four totals for a food entry or a whole day. The zero
// value is a valid empty total.
type Nutrients struct {
	Kcal    float64 `json:"kcal"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
	Protein float64 `json:"protein"`
}

// Add returns the field-wise sum of n and o.
func (n Nutrients) Add(o Nutrients) Nutrients {
	return Nutrients{
		Kcal:    n.Kcal + o.Kcal,
		Carbs:   n.Carbs + o.Carbs,
		Fat:     n.Fat + o.Fat,
		Protein: n.Protein + o.Protein,
	}
}

// Set stores v as the total for nutrient k.
func (n *Nutrients) Set(k Nutrient, v float64) {
	switch k {
	case Calories:
		n.Kcal = v
	case Carbs:
		n.Carbs = v
	case Fat:
		n.Fat = v
	case Protein:
		n.Protein = v
	}
}

// Get returns the total for nutrient k.
func (n Nutrients) Get(k Nutrient) float64 {
	switch k {
	case Calories:
		return n.Kcal
	case Carbs:
		return n.Carbs
	case Fat:
		return n.Fat
	case Protein:
		return n.Protein
	}
	return 0
}

// ---------------------------------------------------------------------------
// Fetched data
// ---------------------------------------------------------------------------

// RawNutritionEntry is one point of a single-nutrient report series. Date is
// partial ("MM/DD") and carries no year.
type RawNutritionEntry struct {
	Date     string
	Nutrient Nutrient
	Total    float64
}

// DailyRecord groups the raw nutrition entries for one calendar date. Date is
// fully resolved but still in a source format (YYYY-MM-DD, YYYY/MM/DD or
// MM/DD/YYYY).
type DailyRecord struct {
	Date    string
	Entries []Nutrients
}

// Summary is a day's folded totals with the date in canonical MM/DD/YYYY form.
type Summary struct {
	Date string `json:"date"`
	Nutrients
}

// Row renders the summary as a full sheet row: date, kcal, carbs, fat,
// protein.
func (s Summary) Row() []any {
	return []any{s.Date, s.Kcal, s.Carbs, s.Fat, s.Protein}
}

// Values renders the four nutrient columns written by an update.
func (s Summary) Values() []any {
	return []any{s.Kcal, s.Carbs, s.Fat, s.Protein}
}

// ---------------------------------------------------------------------------
// Spreadsheet model
// ---------------------------------------------------------------------------

// SheetRow is an existing spreadsheet row as read from the date/kcal columns.
type SheetRow struct {
	Row  int // 1-based
	Date string
	Kcal float64
}

// OpKind distinguishes appends from updates.
type OpKind int

const (
	Append OpKind = iota
	Update
)

func (k OpKind) String() string {
	if k == Update {
		return "update"
	}
	return "append"
}

// Operation is a single spreadsheet change. Row is zero for appends.
type Operation struct {
	Kind    OpKind
	Row     int
	Summary Summary
}

// Plan is the reconciliation result. Appends and Updates never share a date.
type Plan struct {
	Appends []Operation
	Updates []Operation
}

// Empty reports whether the plan has nothing to write.
func (p Plan) Empty() bool {
	return len(p.Appends) == 0 && len(p.Updates) == 0
}

// Counts returns the number of appends and updates.
func (p Plan) Counts() (appends, updates int) {
	return len(p.Appends), len(p.Updates)
}

// ---------------------------------------------------------------------------
// Run history
// ---------------------------------------------------------------------------

// RunRecord is one persisted job execution.
type RunRecord struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Strategy   string    `json:"strategy"`
	Fetched    int       `json:"fetched"`
	Appended   int       `json:"appended"`
	Updated    int       `json:"updated"`
	DryRun     bool      `json:"dry_run"`
	Error      string    `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ParseError reports a malformed numeric or date field. Callers usually
// recover from it by defaulting the value to zero or skipping the record.
type ParseError struct {
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parsing %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("parsing %s %q", e.Field, e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }
