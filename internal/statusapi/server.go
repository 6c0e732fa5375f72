// Package statusapi serves the run history and the summary archive over
// HTTP, and lets an operator trigger a sync.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"nutrisync/internal/domain"
	"nutrisync/internal/job"
	"nutrisync/internal/store"
)

const defaultRunLimit = 20

// Runner triggers a sync.
type Runner interface {
	Run(ctx context.Context, opts job.RunOptions) (*job.Result, error)
}

// RunResponse is the body returned by POST /api/run.
type RunResponse struct {
	Run     domain.RunRecord `json:"run"`
	Appends []domain.Summary `json:"appends"`
	Updates []UpdateJSON     `json:"updates"`
}

// UpdateJSON is one planned row update.
type UpdateJSON struct {
	Row int `json:"row"`
	domain.Summary
}

// StatusServer serves the status HTTP API. runs and archive may be nil, in
// which case their endpoints answer 404.
type StatusServer struct {
	runner  Runner
	runs    store.RunStore
	archive store.SummaryArchive
	log     *slog.Logger
}

// NewStatusServer creates a new status HTTP server.
func NewStatusServer(runner Runner, runs store.RunStore, archive store.SummaryArchive, log *slog.Logger) *StatusServer {
	if log == nil {
		log = slog.Default()
	}
	return &StatusServer{
		runner:  runner,
		runs:    runs,
		archive: archive,
		log:     log.With("component", "statusapi"),
	}
}

// RegisterRoutes registers all API routes on the given router.
func (s *StatusServer) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/runs", s.handleRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/run", s.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/api/summaries", s.handleYears).Methods(http.MethodGet)
	r.HandleFunc("/api/summaries/{year:[0-9]{4}}", s.handleSummaries).Methods(http.MethodGet)
}

// Handler returns an http.Handler with CORS and request logging.
func (s *StatusServer) Handler() http.Handler {
	r := mux.NewRouter()
	s.RegisterRoutes(r)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(s.logRequests(r))
}

func (s *StatusServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *StatusServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *StatusServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotFound, "run history is not configured")
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error("listing runs", "error", err)
		writeError(w, http.StatusInternalServerError, "listing runs failed")
		return
	}
	if runs == nil {
		runs = []domain.RunRecord{}
	}
	writeJSON(w, runs)
}

func (s *StatusServer) handleRun(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	// The sync outlives the request: a client that disconnects or times out
	// must not cancel it between the sheet append and update.
	res, err := s.runner.Run(context.WithoutCancel(r.Context()), job.RunOptions{DryRun: dryRun})
	if errors.Is(err, job.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	resp := RunResponse{
		Run:     res.Record,
		Appends: make([]domain.Summary, 0, len(res.Plan.Appends)),
		Updates: make([]UpdateJSON, 0, len(res.Plan.Updates)),
	}
	for _, op := range res.Plan.Appends {
		resp.Appends = append(resp.Appends, op.Summary)
	}
	for _, op := range res.Plan.Updates {
		resp.Updates = append(resp.Updates, UpdateJSON{Row: op.Row, Summary: op.Summary})
	}
	writeJSON(w, resp)
}

func (s *StatusServer) handleYears(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "summary archive is not configured")
		return
	}
	years, err := s.archive.ListYears(r.Context())
	if err != nil {
		s.log.Error("listing archive years", "error", err)
		writeError(w, http.StatusInternalServerError, "listing archive failed")
		return
	}
	if years == nil {
		years = []int{}
	}
	writeJSON(w, map[string][]int{"years": years})
}

func (s *StatusServer) handleSummaries(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "summary archive is not configured")
		return
	}
	year, _ := strconv.Atoi(mux.Vars(r)["year"])

	sums, err := s.archive.ReadSummaries(r.Context(), year)
	if err != nil {
		s.log.Error("reading archive", "year", year, "error", err)
		writeError(w, http.StatusInternalServerError, "reading archive failed")
		return
	}
	if sums == nil {
		sums = []domain.Summary{}
	}
	writeJSON(w, sums)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
