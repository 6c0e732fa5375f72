// Package mfp fetches nutrition history from the fitness tracker's web API.
//
// Two report shapes are supported because the API has changed over time: a
// combined diary report keyed by full dates with nested food entries, and
// four single-nutrient series keyed by month/day. Both sit behind the
// CheckinHistoryFetcher interface.
package mfp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// sessionCookieName is the cookie carrying the externally supplied session.
const sessionCookieName = "__Secure-next-auth.session-token"

// maxErrorBody caps how much of a failed response body is kept in a FetchError.
const maxErrorBody = 512

// FetchError reports a failed upstream request. Status is zero when the
// request never produced a response.
type FetchError struct {
	Endpoint string
	Status   int
	Body     string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client is a thin HTTP client for the nutrition report API. The session
// cookie is passed through untouched.
type Client struct {
	baseURL    string
	cookie     string
	httpClient *http.Client
}

// NewClient creates a Client for baseURL using the given session cookie.
func NewClient(baseURL, sessionCookie string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookie:     sessionCookie,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// do sends req and decodes a successful JSON response into out. Any non-2xx
// status becomes a FetchError labelled with endpoint.
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Cookie", sessionCookieName+"="+c.cookie)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &FetchError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(body)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &FetchError{Endpoint: endpoint, Status: resp.StatusCode, Body: text}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &FetchError{Endpoint: endpoint, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, endpoint, out)
}

func (c *Client) postJSON(ctx context.Context, path, endpoint string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, endpoint, out)
}
