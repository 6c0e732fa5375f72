package mfp

import (
	"context"
	"time"

	"nutrisync/internal/domain"
)

var _ CheckinHistoryFetcher = (*DiaryFetcher)(nil)

const diaryReportPath = "/api/services/diary/report"

// diaryRequest is the body of the combined diary report request.
type diaryRequest struct {
	Username          string `json:"username"`
	ShowFoodDiary     int    `json:"show_food_diary"`
	ShowExerciseDiary int    `json:"show_exercise_diary"`
	ShowFoodNotes     int    `json:"show_food_notes"`
	ShowExerciseNotes int    `json:"show_exercise_notes"`
	From              string `json:"from"`
	To                string `json:"to"`
}

type diaryDay struct {
	Date        string      `json:"date"`
	FoodEntries []diaryFood `json:"food_entries"`
}

type diaryFood struct {
	NutritionalContents struct {
		Energy struct {
			Value float64 `json:"value"`
		} `json:"energy"`
		Carbohydrates float64 `json:"carbohydrates"`
		Fat           float64 `json:"fat"`
		Protein       float64 `json:"protein"`
	} `json:"nutritional_contents"`
}

// DiaryFetcher reads the combined diary report: one entry per day with the
// day's food entries nested inside.
type DiaryFetcher struct {
	client *Client
	opts   Options
}

// NewDiaryFetcher creates a DiaryFetcher.
func NewDiaryFetcher(c *Client, opts Options) *DiaryFetcher {
	return &DiaryFetcher{client: c, opts: opts}
}

// Name returns the strategy identifier.
func (f *DiaryFetcher) Name() string { return StrategyDiary }

// Window returns the report date range as YYYY-MM-DD strings.
func (f *DiaryFetcher) Window() (from, to string) {
	today := f.opts.now()
	start := today.AddDate(-1, 0, 0)
	if f.opts.LookbackDays > 0 {
		start = today.AddDate(0, 0, -f.opts.LookbackDays)
	}
	return start.Format(time.DateOnly), today.Format(time.DateOnly)
}

// FetchCheckinHistory requests the diary report for the window and returns
// one record per day in source order. Each food entry becomes one raw
// nutrition entry; missing values are zero.
func (f *DiaryFetcher) FetchCheckinHistory(ctx context.Context) ([]domain.DailyRecord, error) {
	from, to := f.Window()
	body := diaryRequest{
		Username:          f.opts.Username,
		ShowFoodDiary:     1,
		ShowExerciseDiary: 1,
		From:              from,
		To:                to,
	}

	f.opts.logger().Debug("fetching diary report", "from", from, "to", to)

	var days []diaryDay
	if err := f.client.postJSON(ctx, diaryReportPath, "diary-report", body, &days); err != nil {
		return nil, err
	}

	records := make([]domain.DailyRecord, 0, len(days))
	for _, d := range days {
		entries := make([]domain.Nutrients, 0, len(d.FoodEntries))
		for _, food := range d.FoodEntries {
			n := food.NutritionalContents
			entries = append(entries, domain.Nutrients{
				Kcal:    n.Energy.Value,
				Carbs:   n.Carbohydrates,
				Fat:     n.Fat,
				Protein: n.Protein,
			})
		}
		records = append(records, domain.DailyRecord{Date: d.Date, Entries: entries})
	}
	return records, nil
}
