// Package nutrisync is a Go client for the nutrisync status API.
package nutrisync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Run mirrors a run history entry.
type Run struct {
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

// Summary is one archived day.
type Summary struct {
	Date    string  `json:"date"`
	Kcal    float64 `json:"kcal"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
	Protein float64 `json:"protein"`
}

// RowUpdate is a planned update of an existing sheet row.
type RowUpdate struct {
	Row int `json:"row"`
	Summary
}

// RunResult is the response to a triggered run.
type RunResult struct {
	Run     Run         `json:"run"`
	Appends []Summary   `json:"appends"`
	Updates []RowUpdate `json:"updates"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nutrisync: status %d: %s", e.Status, e.Message)
}

// Client provides a Go SDK for interacting with the nutrisync status API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new nutrisync API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health reports whether the server answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var body map[string]string
	if err := c.do(ctx, http.MethodGet, "/healthz", &body); err != nil {
		return err
	}
	if body["status"] != "ok" {
		return fmt.Errorf("nutrisync: unhealthy: %v", body)
	}
	return nil
}

// ListRuns retrieves the most recent runs, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	path := "/api/runs"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var runs []Run
	return runs, c.do(ctx, http.MethodGet, path, &runs)
}

// Summaries retrieves the archived summaries for year.
func (c *Client) Summaries(ctx context.Context, year int) ([]Summary, error) {
	var sums []Summary
	return sums, c.do(ctx, http.MethodGet, "/api/summaries/"+strconv.Itoa(year), &sums)
}

// TriggerRun asks the server to run a sync now and waits for the result. A
// run already in progress yields an *APIError with status 409.
func (c *Client) TriggerRun(ctx context.Context, dryRun bool) (*RunResult, error) {
	path := "/api/run"
	if dryRun {
		path += "?dry_run=true"
	}
	var res RunResult
	if err := c.do(ctx, http.MethodPost, path, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
