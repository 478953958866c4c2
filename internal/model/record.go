package model

import (
	"strings"

	"golang.org/x/text/width"
)

// NoData is the sentinel stored when a field was checked and nothing was
// found. It is distinct from an empty string, which means "never populated".
const NoData = "no-data"

// TimeLayout is the timestamp format used in the tabular file and the mirror.
const TimeLayout = "2006-01-02 15:04:05"

// Reserved column names. These are managed by the store and may never be
// renamed or written through the schema.
const (
	ColumnID        = "id"
	ColumnTimestamp = "timestamp"
)

// IsReservedColumn reports whether name is one of the store-managed columns.
func IsReservedColumn(name string) bool {
	return name == ColumnID || name == ColumnTimestamp
}

// Record is a single row in the tabular store. Fields is an open-ended
// mapping because the schema evolves at runtime; there is no fixed struct
// shape for a candidate.
type Record struct {
	ID        int               `json:"id"`
	Timestamp string            `json:"timestamp"`
	Fields    map[string]string `json:"fields"`
}

// Get returns the value stored under name, or the empty string when the
// record predates the column.
func (r Record) Get(name string) string {
	return r.Fields[name]
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Timestamp: r.Timestamp, Fields: fields}
}

// Snapshot is a full copy of the tabular store: the ordered schema columns
// (reserved columns excluded) plus every row. It is the unit exchanged with
// the remote mirror.
type Snapshot struct {
	Columns []string `json:"columns"`
	Rows    []Record `json:"rows"`
}

// Header returns the on-disk header row: id, timestamp, then schema columns.
func (s Snapshot) Header() []string {
	header := make([]string, 0, len(s.Columns)+2)
	header = append(header, ColumnID, ColumnTimestamp)
	return append(header, s.Columns...)
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Columns: append([]string(nil), s.Columns...)}
	out.Rows = make([]Record, len(s.Rows))
	for i, r := range s.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Normalize trims surrounding whitespace and folds full-width/half-width
// variants to their canonical form. Candidate names arrive both ways from
// pasted Japanese text.
func Normalize(v string) string {
	return width.Fold.String(strings.TrimSpace(v))
}

// Match reports whether two values are equal after normalization. Case
// folding is opt-in; observed behavior of the data only justifies trimming.
func Match(a, b string, caseInsensitive bool) bool {
	a, b = Normalize(a), Normalize(b)
	if caseInsensitive {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// Informative reports whether v carries real data: non-empty after trimming
// and not the no-data sentinel.
func Informative(v string) bool {
	t := strings.TrimSpace(v)
	return t != "" && t != NoData
}
