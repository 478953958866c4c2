package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/talent-ops/intake-cli/internal/model"
)

// utf8BOM prefixes the CSV file so spreadsheet tooling (Excel in particular)
// detects UTF-8 and Japanese column names survive a round trip.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVStore persists the table as a flat UTF-8 CSV file with an id,timestamp
// header prefix. Every commit reads the whole file, mutates in memory, and
// rewrites it; last writer wins across concurrent processes.
type CSVStore struct {
	mu              sync.Mutex
	path            string
	minimalKeys     []string
	caseInsensitive bool
	nowFn           func() time.Time
}

// CSVOption configures a CSVStore.
type CSVOption func(*CSVStore)

// WithCaseInsensitiveMatch enables case folding in FindByField comparisons.
func WithCaseInsensitiveMatch(on bool) CSVOption {
	return func(s *CSVStore) {
		s.caseInsensitive = on
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) CSVOption {
	return func(s *CSVStore) {
		s.nowFn = now
	}
}

// NewCSV creates a CSV-backed store at path. minimalKeys is the column set
// reported before any data exists; the file itself is created lazily on the
// first commit.
func NewCSV(path string, minimalKeys []string, opts ...CSVOption) *CSVStore {
	s := &CSVStore{
		path:        path,
		minimalKeys: append([]string(nil), minimalKeys...),
		nowFn:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CSVStore) CurrentSchema(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	return snap.Columns, nil
}

func (s *CSVStore) Get(ctx context.Context, id int) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, r := range snap.Rows {
		if r.ID == id {
			rec := r.Clone()
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *CSVStore) FindByField(ctx context.Context, name, value string) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []model.Record
	for _, r := range snap.Rows {
		if model.Match(r.Get(name), value, s.caseInsensitive) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *CSVStore) Commit(ctx context.Context, fields map[string]string, targetID int) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	rec, err := applyCommit(&snap, fields, targetID, s.nowFn())
	if err != nil {
		return nil, err
	}
	if err := s.write(snap); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *CSVStore) Snapshot(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *CSVStore) Replace(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap = snap.Clone()
	ensureColumns(&snap, s.minimalKeys)
	return s.write(snap)
}

// read loads the whole table. A missing file is not an error: it yields the
// minimal key set and no rows.
func (s *CSVStore) read() (model.Snapshot, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Snapshot{Columns: append([]string(nil), s.minimalKeys...)}, nil
	}
	if err != nil {
		return model.Snapshot{}, eris.Wrap(err, "tabular: open csv")
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return model.Snapshot{}, eris.Wrap(err, "tabular: read csv")
	}
	if len(records) == 0 {
		return model.Snapshot{Columns: append([]string(nil), s.minimalKeys...)}, nil
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], string(utf8BOM))
	}
	if len(header) < 2 || header[0] != model.ColumnID || header[1] != model.ColumnTimestamp {
		return model.Snapshot{}, eris.Errorf("tabular: malformed header in %s", s.path)
	}

	snap := model.Snapshot{Columns: append([]string(nil), header[2:]...)}
	for _, row := range records[1:] {
		if len(row) == 0 {
			continue
		}
		rec := model.Record{Fields: make(map[string]string, len(snap.Columns))}
		if id, err := strconv.Atoi(strings.TrimSpace(cell(row, 0))); err == nil {
			rec.ID = id
		}
		rec.Timestamp = cell(row, 1)
		for i, col := range snap.Columns {
			rec.Fields[col] = cell(row, i+2)
		}
		snap.Rows = append(snap.Rows, rec)
	}
	return snap, nil
}

// write rewrites the backing file wholesale via a temp file in the same
// directory, so a crash mid-write leaves the previous table intact.
func (s *CSVStore) write(snap model.Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "tabular: create output dir")
	}

	tmp, err := os.CreateTemp(dir, ".intake-*.csv")
	if err != nil {
		return eris.Wrap(err, "tabular: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := writeCSV(tmp, snap); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "tabular: close temp file")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return eris.Wrap(err, "tabular: replace csv")
	}
	return nil
}

func writeCSV(w io.Writer, snap model.Snapshot) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return eris.Wrap(err, "tabular: write bom")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(snap.Header()); err != nil {
		return eris.Wrap(err, "tabular: write header")
	}
	for _, rec := range snap.Rows {
		row := make([]string, 0, len(snap.Columns)+2)
		row = append(row, strconv.Itoa(rec.ID), rec.Timestamp)
		for _, col := range snap.Columns {
			row = append(row, rec.Fields[col])
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "tabular: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "tabular: flush csv")
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
