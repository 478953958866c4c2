// Package mirror keeps a remote spreadsheet in sync with the local tabular
// store. Sync is wholesale in both directions: pull replaces the local
// table, push clears the sheet and rewrites it. Last writer wins across the
// whole table; the workflow accepts that in exchange for never leaving the
// sheet with a half-updated row.
package mirror

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/talent-ops/intake-cli/internal/model"
	"github.com/talent-ops/intake-cli/internal/resilience"
	"github.com/talent-ops/intake-cli/pkg/sheets"
)

// fullRange addresses the whole usable grid of one sheet.
const fullRange = "A1:ZZ"

// Mirror is the remote copy of the tabular store.
type Mirror interface {
	// Pull downloads the full remote table. An empty sheet yields an empty
	// snapshot, not an error.
	Pull(ctx context.Context) (model.Snapshot, error)
	// Push replaces all remote data with the given snapshot.
	Push(ctx context.Context, snap model.Snapshot) error
}

// Sheets mirrors the table into one sheet of a spreadsheet.
type Sheets struct {
	client    sheets.Client
	sheetName string
	limiter   *rate.Limiter
	retry     resilience.Config
}

// SheetsOption configures the mirror.
type SheetsOption func(*Sheets)

// WithRateLimit throttles push traffic (requests per second).
func WithRateLimit(rps float64) SheetsOption {
	return func(m *Sheets) {
		if rps > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			m.limiter = nil
		}
	}
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.Config) SheetsOption {
	return func(m *Sheets) {
		m.retry = cfg
	}
}

// NewSheets creates a mirror over the given values client and sheet name.
// Pushes are throttled to 1 req/s by default; the Sheets write quota is per
// minute and a push costs two requests.
func NewSheets(client sheets.Client, sheetName string, opts ...SheetsOption) *Sheets {
	m := &Sheets{
		client:    client,
		sheetName: sheetName,
		limiter:   rate.NewLimiter(1, 1),
		retry:     resilience.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Sheets) rangeRef() string {
	return m.sheetName + "!" + fullRange
}

func (m *Sheets) Pull(ctx context.Context) (model.Snapshot, error) {
	values, err := resilience.DoVal(ctx, m.retry, "mirror pull", func(ctx context.Context) ([][]string, error) {
		v, err := m.client.GetValues(ctx, m.rangeRef())
		return v, classify(err)
	})
	if err != nil {
		return model.Snapshot{}, eris.Wrap(err, "mirror: pull")
	}

	if len(values) == 0 {
		zap.L().Info("remote sheet empty, starting fresh")
		return model.Snapshot{}, nil
	}

	snap, err := fromGrid(values)
	if err != nil {
		return model.Snapshot{}, err
	}
	zap.L().Info("pulled remote table",
		zap.Int("rows", len(snap.Rows)),
		zap.Int("columns", len(snap.Columns)),
	)
	return snap, nil
}

func (m *Sheets) Push(ctx context.Context, snap model.Snapshot) error {
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "mirror: rate limit")
		}
	}

	grid := toGrid(snap)
	err := resilience.Do(ctx, m.retry, "mirror push", func(ctx context.Context) error {
		// Clear-then-write: previous rows beyond the new row count must not
		// survive the replace.
		if err := m.client.ClearValues(ctx, m.rangeRef()); err != nil {
			return classify(err)
		}
		return classify(m.client.UpdateValues(ctx, m.sheetName+"!A1", grid))
	})
	if err != nil {
		return eris.Wrap(err, "mirror: push")
	}

	zap.L().Info("pushed table to remote",
		zap.Int("rows", len(snap.Rows)),
		zap.Int("columns", len(snap.Columns)),
	)
	return nil
}

// classify marks retryable API failures as transient for the retry loop.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sheets.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(err, apiErr.StatusCode)
	}
	return err
}

// toGrid flattens a snapshot into the header-plus-rows rectangle the values
// API expects.
func toGrid(snap model.Snapshot) [][]string {
	grid := make([][]string, 0, len(snap.Rows)+1)
	grid = append(grid, snap.Header())
	for _, rec := range snap.Rows {
		row := make([]string, 0, len(snap.Columns)+2)
		row = append(row, strconv.Itoa(rec.ID), rec.Timestamp)
		for _, col := range snap.Columns {
			row = append(row, rec.Fields[col])
		}
		grid = append(grid, row)
	}
	return grid
}

// fromGrid parses a downloaded rectangle back into a snapshot. Short rows
// (the API trims trailing empty cells) are padded, and empty cells become
// the sentinel so a pulled table never holds an empty field value.
func fromGrid(values [][]string) (model.Snapshot, error) {
	header := values[0]
	if len(header) < 2 ||
		strings.TrimSpace(header[0]) != model.ColumnID ||
		strings.TrimSpace(header[1]) != model.ColumnTimestamp {
		return model.Snapshot{}, eris.Errorf("mirror: malformed remote header %v", header)
	}

	snap := model.Snapshot{Columns: append([]string(nil), header[2:]...)}
	for _, row := range values[1:] {
		if len(row) == 0 {
			continue
		}
		rec := model.Record{Fields: make(map[string]string, len(snap.Columns))}
		if id, err := strconv.Atoi(strings.TrimSpace(cell(row, 0))); err == nil {
			rec.ID = id
		}
		rec.Timestamp = cell(row, 1)
		for i, col := range snap.Columns {
			v := cell(row, i+2)
			if v == "" {
				v = model.NoData
			}
			rec.Fields[col] = v
		}
		snap.Rows = append(snap.Rows, rec)
	}
	return snap, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
