// Package tabular implements the dynamic-schema candidate table: an
// append/update row store whose column set grows as extraction discovers new
// fields. The file-backed implementation rewrites the whole table on every
// commit; that is the accepted durability contract for this tool.
package tabular

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/talent-ops/intake-cli/internal/model"
)

// ErrSchemaConflict is returned when a caller tries to write through one of
// the reserved id/timestamp columns. The workflow never does this; the check
// is defensive.
var ErrSchemaConflict = eris.New("tabular: field set names a reserved column")

// ErrUnavailable marks a store whose backing medium cannot be read or
// written. MemStore returns it when failure injection is enabled.
var ErrUnavailable = eris.New("tabular: store unavailable")

// Store is the persistence handle passed to every component that reads or
// writes candidate rows. Implementations: CSVStore (file-backed) and
// MemStore (tests, injected state).
type Store interface {
	// CurrentSchema returns the ordered column set, reserved columns
	// excluded. A store with no persisted state reports the minimal key set.
	CurrentSchema(ctx context.Context) ([]string, error)

	// Get returns the record with the given id, or nil when absent.
	Get(ctx context.Context, id int) (*model.Record, error)

	// FindByField returns every record whose value under name matches value
	// after normalization. Row order is storage order; callers sort.
	FindByField(ctx context.Context, name, value string) ([]model.Record, error)

	// Commit writes one record. targetID > 0 updates that record in place
	// (absent ids fall back to append); targetID == 0 appends. Field names
	// not yet in the schema grow it, backfilling the sentinel everywhere.
	Commit(ctx context.Context, fields map[string]string, targetID int) (*model.Record, error)

	// Snapshot returns a full copy of the table.
	Snapshot(ctx context.Context) (model.Snapshot, error)

	// Replace swaps the entire table for the given snapshot. Used by the
	// mirror pull path; the minimal key set is re-imposed on the columns.
	Replace(ctx context.Context, snap model.Snapshot) error
}
