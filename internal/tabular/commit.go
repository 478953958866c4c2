package tabular

import (
	"sort"
	"time"

	"github.com/talent-ops/intake-cli/internal/model"
)

// applyCommit mutates snap with one committed field set and returns the
// written record. Shared by both store implementations so the append/update
// and schema-growth semantics cannot drift between them.
func applyCommit(snap *model.Snapshot, fields map[string]string, targetID int, now time.Time) (model.Record, error) {
	for name := range fields {
		if model.IsReservedColumn(name) {
			return model.Record{}, ErrSchemaConflict
		}
	}

	growSchema(snap, fields)
	stamp := now.Format(model.TimeLayout)

	if targetID > 0 {
		for i := range snap.Rows {
			if snap.Rows[i].ID != targetID {
				continue
			}
			// In-place update: named fields overwrite, everything else keeps
			// its prior value. The id never changes; the timestamp reflects
			// this write.
			for name, value := range fields {
				snap.Rows[i].Fields[name] = value
			}
			snap.Rows[i].Timestamp = stamp
			return snap.Rows[i].Clone(), nil
		}
		// Target vanished between selection and commit: fall through to append.
	}

	rec := model.Record{
		ID:        nextID(snap.Rows),
		Timestamp: stamp,
		Fields:    make(map[string]string, len(snap.Columns)),
	}
	for _, col := range snap.Columns {
		if v, ok := fields[col]; ok && v != "" {
			rec.Fields[col] = v
		} else {
			rec.Fields[col] = model.NoData
		}
	}
	snap.Rows = append(snap.Rows, rec)
	return rec.Clone(), nil
}

// growSchema appends any not-yet-known field names to the column set in
// sorted order and backfills existing rows with the sentinel. Columns are
// only ever appended, never reordered or dropped.
func growSchema(snap *model.Snapshot, fields map[string]string) {
	known := make(map[string]struct{}, len(snap.Columns))
	for _, c := range snap.Columns {
		known[c] = struct{}{}
	}

	var added []string
	for name := range fields {
		if _, ok := known[name]; !ok {
			added = append(added, name)
		}
	}
	if len(added) == 0 {
		return
	}
	sort.Strings(added)

	snap.Columns = append(snap.Columns, added...)
	for i := range snap.Rows {
		for _, name := range added {
			if _, ok := snap.Rows[i].Fields[name]; !ok {
				snap.Rows[i].Fields[name] = model.NoData
			}
		}
	}
}

// nextID assigns max(existing)+1, or 1 for an empty table. Ids of deleted or
// replaced rows are never reused downward.
func nextID(rows []model.Record) int {
	maxID := 0
	for _, r := range rows {
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	return maxID + 1
}

// ensureColumns imposes the minimal key set on a snapshot's columns,
// preserving any extra columns already present. Added columns are
// backfilled with the sentinel, same as a schema grow; a row must never
// read an empty string for a known column.
func ensureColumns(snap *model.Snapshot, minimal []string) {
	known := make(map[string]struct{}, len(snap.Columns))
	for _, c := range snap.Columns {
		known[c] = struct{}{}
	}

	var added []string
	for _, c := range minimal {
		if _, ok := known[c]; !ok {
			added = append(added, c)
		}
	}
	if len(added) == 0 {
		return
	}

	snap.Columns = append(snap.Columns, added...)
	for i := range snap.Rows {
		if snap.Rows[i].Fields == nil {
			snap.Rows[i].Fields = make(map[string]string, len(added))
		}
		for _, name := range added {
			if v, ok := snap.Rows[i].Fields[name]; !ok || v == "" {
				snap.Rows[i].Fields[name] = model.NoData
			}
		}
	}
}
