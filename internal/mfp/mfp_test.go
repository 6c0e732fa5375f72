package mfp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"nutrisync/internal/domain"
)

func fixedNow() time.Time {
	return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
}

func TestDiaryFetcher(t *testing.T) {
	var got diaryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != diaryReportPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if c := r.Header.Get("Cookie"); c != sessionCookieName+"=secret" {
			t.Errorf("Cookie = %q", c)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		w.Write([]byte(`[
			{"date": "2024-03-01", "food_entries": [
				{"nutritional_contents": {"energy": {"value": 600}, "carbohydrates": 50, "fat": 20, "protein": 30}},
				{"nutritional_contents": {"energy": {"value": 1200}, "carbohydrates": 150}}
			]},
			{"date": "2024-03-02", "food_entries": null},
			{"date": "2024-03-03", "food_entries": [{"nutritional_contents": null}]}
		]`))
	}))
	defer srv.Close()

	f := NewDiaryFetcher(NewClient(srv.URL, "secret", time.Second), Options{Username: "alice", Now: fixedNow})
	records, err := f.FetchCheckinHistory(context.Background())
	if err != nil {
		t.Fatalf("FetchCheckinHistory: %v", err)
	}

	if got.Username != "alice" || got.From != "2023-03-10" || got.To != "2024-03-10" {
		t.Errorf("request = %+v, want alice 2023-03-10..2024-03-10", got)
	}
	if got.ShowFoodDiary != 1 || got.ShowExerciseDiary != 1 || got.ShowFoodNotes != 0 {
		t.Errorf("request flags = %+v", got)
	}

	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[0].Date != "2024-03-01" || len(records[0].Entries) != 2 {
		t.Fatalf("records[0] = %+v", records[0])
	}
	if records[0].Entries[1] != (domain.Nutrients{Kcal: 1200, Carbs: 150}) {
		t.Errorf("second food entry = %+v, want kcal 1200 carbs 150", records[0].Entries[1])
	}
	if len(records[1].Entries) != 0 {
		t.Errorf("records[1] has %d entries, want 0", len(records[1].Entries))
	}
	if records[2].Entries[0] != (domain.Nutrients{}) {
		t.Errorf("null contents = %+v, want zero", records[2].Entries[0])
	}
}

func TestDiaryFetcherLookbackWindow(t *testing.T) {
	f := NewDiaryFetcher(NewClient("http://unused", "", 0), Options{LookbackDays: 30, Now: fixedNow})
	from, to := f.Window()
	if from != "2024-02-09" || to != "2024-03-10" {
		t.Errorf("Window() = %s..%s, want 2024-02-09..2024-03-10", from, to)
	}
}

func TestDiaryFetcherError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("session expired"))
	}))
	defer srv.Close()

	f := NewDiaryFetcher(NewClient(srv.URL, "stale", time.Second), Options{Username: "alice", Now: fixedNow})
	_, err := f.FetchCheckinHistory(context.Background())

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if fe.Endpoint != "diary-report" || fe.Status != http.StatusUnauthorized || fe.Body != "session expired" {
		t.Errorf("FetchError = %+v", fe)
	}
}

func TestDiaryFetcherBadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>login</html>"))
	}))
	defer srv.Close()

	f := NewDiaryFetcher(NewClient(srv.URL, "x", time.Second), Options{Now: fixedNow})
	if _, err := f.FetchCheckinHistory(context.Background()); err == nil {
		t.Fatal("expected error decoding a non-JSON body")
	}
}

func seriesServer(t *testing.T, fail string) *httptest.Server {
	t.Helper()
	bodies := map[string]string{
		"Calories": `{"data":[{"date":"12/25","total":2500},{"date":"03/01","total":1800},{"date":"03/02","total":2000}]}`,
		"Carbs":    `{"data":[{"date":"03/01","total":200},{"date":"12/25","total":300}]}`,
		"Fat":      `{"data":[{"date":"03/02","total":70}]}`,
		"Protein":  `{"data":[{"date":"03/01","total":120},{"date":"bogus","total":1}]}`,
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/reports/results/nutrition/"), "/")
		if len(parts) != 2 || parts[1] != "30.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if parts[0] == fail {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
			return
		}
		w.Write([]byte(bodies[parts[0]]))
	}))
}

func TestSeriesFetcher(t *testing.T) {
	srv := seriesServer(t, "")
	defer srv.Close()

	f, err := New(StrategySeries, NewClient(srv.URL, "c", time.Second), Options{LookbackDays: 30, Now: fixedNow})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.Name() != StrategySeries {
		t.Errorf("Name() = %q, want %q", f.Name(), StrategySeries)
	}

	records, err := f.FetchCheckinHistory(context.Background())
	if err != nil {
		t.Fatalf("FetchCheckinHistory: %v", err)
	}

	want := []struct {
		date string
		n    domain.Nutrients
	}{
		{"2023/12/25", domain.Nutrients{Kcal: 2500, Carbs: 300}},
		{"2024/03/01", domain.Nutrients{Kcal: 1800, Carbs: 200, Protein: 120}},
		{"2024/03/02", domain.Nutrients{Kcal: 2000, Fat: 70}},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d: %+v", len(records), len(want), records)
	}
	for i, w := range want {
		if records[i].Date != w.date {
			t.Errorf("records[%d].Date = %q, want %q", i, records[i].Date, w.date)
		}
		if len(records[i].Entries) != 1 || records[i].Entries[0] != w.n {
			t.Errorf("records[%d].Entries = %+v, want [%+v]", i, records[i].Entries, w.n)
		}
	}
}

func TestSeriesFetcherFailsWhole(t *testing.T) {
	srv := seriesServer(t, "Fat")
	defer srv.Close()

	f := NewSeriesFetcher(NewClient(srv.URL, "c", time.Second), Options{LookbackDays: 30, Now: fixedNow})
	records, err := f.FetchCheckinHistory(context.Background())
	if records != nil {
		t.Errorf("got partial records %+v, want nil", records)
	}

	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if fe.Endpoint != "series:Fat" || fe.Status != http.StatusBadGateway {
		t.Errorf("FetchError = %+v, want series:Fat 502", fe)
	}
}

func TestSeriesFetcherConcurrent(t *testing.T) {
	var inflight, peak atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == 4 {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		inflight.Add(-1)
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	f := NewSeriesFetcher(NewClient(srv.URL, "c", 5*time.Second), Options{LookbackDays: 7, Now: fixedNow})
	if _, err := f.FetchCheckinHistory(context.Background()); err != nil {
		t.Fatalf("FetchCheckinHistory: %v", err)
	}
	if peak.Load() != 4 {
		t.Errorf("peak concurrent requests = %d, want 4", peak.Load())
	}
}

func TestMergeSeriesYearInference(t *testing.T) {
	points := []domain.RawNutritionEntry{
		{Date: "03/01", Nutrient: domain.Calories, Total: 1000},
		{Date: "12/25", Nutrient: domain.Calories, Total: 2000},
		{Date: "2024-02-01", Nutrient: domain.Protein, Total: 80},
	}
	records := MergeSeries(points, fixedNow(), nil)

	dates := make([]string, len(records))
	for i, r := range records {
		dates[i] = r.Date
	}
	if strings.Join(dates, ",") != "2023/12/25,2024/02/01,2024/03/01" {
		t.Errorf("dates = %v", dates)
	}
}

func TestNewUnknownStrategy(t *testing.T) {
	if _, err := New("scrape", NewClient("http://x", "", 0), Options{}); err == nil {
		t.Error("New should reject an unknown strategy")
	}
	if _, err := New(StrategySeries, NewClient("http://x", "", 0), Options{}); err == nil {
		t.Error("New should reject a series fetcher without a lookback")
	}
	f, err := New(StrategyDiary, NewClient("http://x", "", 0), Options{})
	if err != nil || f.Name() != StrategyDiary {
		t.Errorf("New(diary) = %v, %v", f, err)
	}
}
