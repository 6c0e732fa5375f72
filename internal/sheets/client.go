// Package sheets reads and writes the nutrition tab of a Google spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"nutrisync/internal/config"
	"nutrisync/internal/domain"
	"nutrisync/internal/reconcile"
)

const (
	valueInputOption = "USER_ENTERED"
	insertDataOption = "INSERT_ROWS"
)

// RowStore is the spreadsheet surface the job depends on.
type RowStore interface {
	// ReadRows returns a snapshot of the date and kcal columns.
	ReadRows(ctx context.Context) ([]domain.SheetRow, error)
	// Apply writes a reconciliation plan.
	Apply(ctx context.Context, plan domain.Plan) error
}

var _ RowStore = (*Client)(nil)

// Options configures a Client.
type Options struct {
	SpreadsheetID string
	Tab           string

	// CredentialsJSON holds service account or authorized user JSON. It takes
	// precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string

	// Endpoint and HTTPClient override the API base URL and transport. When
	// HTTPClient is set no credentials are required.
	Endpoint   string
	HTTPClient *http.Client

	Log *slog.Logger
}

// Client is bound to one spreadsheet tab.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	tab           string
	log           *slog.Logger
}

// NewClient authenticates and returns a Client for opts.SpreadsheetID.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.SpreadsheetID == "" {
		return nil, &config.ConfigError{Field: "sheet.spreadsheet_id", Reason: "required"}
	}
	if opts.Tab == "" {
		return nil, &config.ConfigError{Field: "sheet.tab", Reason: "required"}
	}

	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	} else {
		hc, err := authorisedClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(hc))
	}

	svc, err := gsheet.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		tab:           opts.Tab,
		log:           log.With("component", "sheets"),
	}, nil
}

// authorisedClient builds an OAuth2 HTTP client from the configured
// credentials, scoped to read/write spreadsheet access.
func authorisedClient(ctx context.Context, opts Options) (*http.Client, error) {
	b := []byte(opts.CredentialsJSON)
	if len(b) == 0 && opts.CredentialsFile != "" {
		var err error
		if b, err = os.ReadFile(opts.CredentialsFile); err != nil {
			return nil, &config.ConfigError{Field: "sheet.credentials_file", Reason: err.Error()}
		}
	}
	if len(b) == 0 {
		return nil, &config.ConfigError{Field: "sheet.credentials", Reason: "required"}
	}

	creds, err := google.CredentialsFromJSON(ctx, b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, &config.ConfigError{Field: "sheet.credentials", Reason: err.Error()}
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

// a1Range qualifies cells with the tab name in A1 notation. The name is
// always quoted so tabs with spaces or punctuation resolve; embedded quotes
// are doubled.
func a1Range(tab, cells string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'!" + cells
}

// ---------------------------------------------------------------------------
// RowStore implementation
// ---------------------------------------------------------------------------

// ReadRows reads columns A:B of the tab. Cells that fail to parse are logged
// and read as zero kcal.
func (c *Client) ReadRows(ctx context.Context) ([]domain.SheetRow, error) {
	rng := a1Range(c.tab, "A:B")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rng, err)
	}

	rows, errs := reconcile.ParseRows(resp.Values)
	for _, e := range errs {
		c.log.Warn("unparseable sheet cell", "error", e)
	}
	c.log.Debug("read sheet rows", "range", rng, "rows", len(rows))
	return rows, nil
}

// AppendRows appends one full row per operation after the last row of the
// tab's table.
func (c *Client) AppendRows(ctx context.Context, ops []domain.Operation) error {
	if len(ops) == 0 {
		return nil
	}

	values := make([][]any, len(ops))
	for i, op := range ops {
		values[i] = op.Summary.Row()
	}

	rng := a1Range(c.tab, "A:B")
	vr := &gsheet.ValueRange{Values: values}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("appending %d rows: %w", len(ops), err)
	}
	c.log.Info("appended rows", "count", len(ops))
	return nil
}

// BatchUpdate overwrites the nutrient columns of each operation's row in a
// single request.
func (c *Client) BatchUpdate(ctx context.Context, ops []domain.Operation) error {
	if len(ops) == 0 {
		return nil
	}

	data := make([]*gsheet.ValueRange, len(ops))
	for i, op := range ops {
		data[i] = &gsheet.ValueRange{
			Range:  a1Range(c.tab, fmt.Sprintf("B%d:E%d", op.Row, op.Row)),
			Values: [][]any{op.Summary.Values()},
		}
	}

	req := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: valueInputOption,
		Data:             data,
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("updating %d rows: %w", len(ops), err)
	}
	c.log.Info("updated rows", "count", len(ops))
	return nil
}

// Apply appends first, then updates. Rows are only ever added after existing
// ones, so the update row numbers from the snapshot stay valid.
func (c *Client) Apply(ctx context.Context, plan domain.Plan) error {
	if err := c.AppendRows(ctx, plan.Appends); err != nil {
		return err
	}
	return c.BatchUpdate(ctx, plan.Updates)
}
