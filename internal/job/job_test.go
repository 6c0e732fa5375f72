package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nutrisync/internal/domain"
)

type fakeFetcher struct {
	records []domain.DailyRecord
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) FetchCheckinHistory(ctx context.Context) ([]domain.DailyRecord, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.records, f.err
}

type fakeSheet struct {
	rows    []domain.SheetRow
	readErr error
	plans   []domain.Plan
}

func (s *fakeSheet) ReadRows(context.Context) ([]domain.SheetRow, error) {
	return s.rows, s.readErr
}

func (s *fakeSheet) Apply(_ context.Context, p domain.Plan) error {
	s.plans = append(s.plans, p)
	return nil
}

type fakeArchive struct {
	written []domain.Summary
	err     error
}

func (a *fakeArchive) WriteSummaries(_ context.Context, s []domain.Summary) error {
	a.written = append(a.written, s...)
	return a.err
}

func (a *fakeArchive) ReadSummaries(context.Context, int) ([]domain.Summary, error) { return nil, nil }
func (a *fakeArchive) ListYears(context.Context) ([]int, error)                     { return nil, nil }

type fakeRuns struct {
	mu   sync.Mutex
	runs []domain.RunRecord
}

func (r *fakeRuns) SaveRun(_ context.Context, run *domain.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run.ID = int64(len(r.runs) + 1)
	r.runs = append(r.runs, *run)
	return nil
}

func (r *fakeRuns) ListRuns(context.Context, int) ([]domain.RunRecord, error) { return r.runs, nil }

func scenario() (*fakeFetcher, *fakeSheet) {
	f := &fakeFetcher{records: []domain.DailyRecord{
		{Date: "2024-03-01", Entries: []domain.Nutrients{{Kcal: 1000, Carbs: 100}, {Kcal: 800, Protein: 50}}},
		{Date: "03/02/2024", Entries: []domain.Nutrients{{Kcal: 2000}}},
	}}
	s := &fakeSheet{rows: []domain.SheetRow{
		{Row: 1, Date: "Date"},
		{Row: 2, Date: "03/02/2024", Kcal: 1500},
	}}
	return f, s
}

func TestRunAppliesPlan(t *testing.T) {
	f, s := scenario()
	archive := &fakeArchive{}
	runs := &fakeRuns{}
	j := New(f, s, archive, runs, nil)

	res, err := j.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(s.plans) != 1 {
		t.Fatalf("Apply called %d times, want 1", len(s.plans))
	}
	plan := s.plans[0]
	if len(plan.Appends) != 1 || plan.Appends[0].Summary.Date != "03/01/2024" || plan.Appends[0].Summary.Kcal != 1800 {
		t.Errorf("appends = %+v, want one 03/01/2024 at 1800 kcal", plan.Appends)
	}
	if len(plan.Updates) != 1 || plan.Updates[0].Row != 2 || plan.Updates[0].Summary.Kcal != 2000 {
		t.Errorf("updates = %+v, want row 2 at 2000 kcal", plan.Updates)
	}

	if len(archive.written) != 2 {
		t.Errorf("archived %d summaries, want 2", len(archive.written))
	}

	if len(runs.runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(runs.runs))
	}
	rec := runs.runs[0]
	if rec.Strategy != "fake" || rec.Fetched != 2 || rec.Appended != 1 || rec.Updated != 1 || rec.Error != "" {
		t.Errorf("run record = %+v", rec)
	}
	if res.Record.ID != 1 {
		t.Errorf("result record ID = %d, want 1", res.Record.ID)
	}
}

func TestRunDryRun(t *testing.T) {
	f, s := scenario()
	runs := &fakeRuns{}
	j := New(f, s, nil, runs, nil)

	res, err := j.Run(context.Background(), RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.plans) != 0 {
		t.Error("dry run wrote to the sheet")
	}
	if a, u := res.Plan.Counts(); a != 1 || u != 1 {
		t.Errorf("plan counts = %d, %d, want 1, 1", a, u)
	}
	rec := runs.runs[0]
	if !rec.DryRun || rec.Appended != 0 || rec.Updated != 0 {
		t.Errorf("dry run record = %+v", rec)
	}
}

func TestRunFetchFailure(t *testing.T) {
	f := &fakeFetcher{err: errors.New("status 401")}
	s := &fakeSheet{}
	runs := &fakeRuns{}
	j := New(f, s, nil, runs, nil)

	if _, err := j.Run(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected fetch error")
	}
	if len(s.plans) != 0 {
		t.Error("sheet written after a failed fetch")
	}
	if len(runs.runs) != 1 || runs.runs[0].Error == "" {
		t.Errorf("failed run not recorded with its error: %+v", runs.runs)
	}
}

func TestRunSheetReadFailure(t *testing.T) {
	f, s := scenario()
	s.readErr = errors.New("quota exceeded")
	j := New(f, s, nil, nil, nil)

	if _, err := j.Run(context.Background(), RunOptions{}); err == nil {
		t.Fatal("expected sheet read error")
	}
	if len(s.plans) != 0 {
		t.Error("sheet written after a failed read")
	}
}

func TestRunArchiveFailureIsNotFatal(t *testing.T) {
	f, s := scenario()
	archive := &fakeArchive{err: errors.New("disk full")}
	j := New(f, s, archive, nil, nil)

	if _, err := j.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.plans) != 1 {
		t.Error("archive failure stopped the sheet write")
	}
}

func TestRunEmptyPlanSkipsApply(t *testing.T) {
	f := &fakeFetcher{records: []domain.DailyRecord{{Date: "2024-03-02", Entries: []domain.Nutrients{{Kcal: 1500.2}}}}}
	s := &fakeSheet{rows: []domain.SheetRow{{Row: 1, Date: "03/02/2024", Kcal: 1500}}}
	j := New(f, s, nil, nil, nil)

	res, err := j.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Plan.Empty() || len(s.plans) != 0 {
		t.Errorf("expected no writes, plan = %+v", res.Plan)
	}
}

func TestRunOverlapGuard(t *testing.T) {
	f, s := scenario()
	f.block = make(chan struct{})
	f.started = make(chan struct{})
	j := New(f, s, nil, nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := j.Run(context.Background(), RunOptions{})
		done <- err
	}()

	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never started")
	}
	if !j.Running() {
		t.Error("Running() = false during a run")
	}

	if _, err := j.Run(context.Background(), RunOptions{}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Run error = %v, want ErrRunInProgress", err)
	}

	close(f.block)
	if err := <-done; err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if j.Running() {
		t.Error("Running() = true after the run finished")
	}
}

func TestFetch(t *testing.T) {
	f, s := scenario()
	j := New(f, s, nil, nil, nil)

	sums, err := j.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(sums) != 2 || sums[0].Date != "03/01/2024" || sums[0].Protein != 50 {
		t.Errorf("summaries = %+v", sums)
	}
	if len(s.plans) != 0 {
		t.Error("Fetch wrote to the sheet")
	}
}
