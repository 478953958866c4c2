package tabular

import (
	"context"
	"sync"
	"time"

	"github.com/talent-ops/intake-cli/internal/model"
)

// MemStore is an in-memory Store with the same commit semantics as CSVStore.
// Used by tests and by callers that inject a pre-built table.
type MemStore struct {
	mu              sync.Mutex
	snap            model.Snapshot
	caseInsensitive bool
	nowFn           func() time.Time

	// Commits counts successful Commit calls. Tests assert on it to prove
	// the workflow touches the store exactly once per run.
	Commits int

	// FailCommits forces Commit to fail, simulating an unavailable backing
	// medium.
	FailCommits bool
}

// NewMem creates an empty in-memory store with the given minimal key set.
func NewMem(minimalKeys []string) *MemStore {
	return &MemStore{
		snap:  model.Snapshot{Columns: append([]string(nil), minimalKeys...)},
		nowFn: time.Now,
	}
}

// SetClock overrides the timestamp source.
func (s *MemStore) SetClock(now func() time.Time) {
	s.nowFn = now
}

// SetCaseInsensitive toggles case folding in FindByField.
func (s *MemStore) SetCaseInsensitive(on bool) {
	s.caseInsensitive = on
}

func (s *MemStore) CurrentSchema(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.snap.Columns...), nil
}

func (s *MemStore) Get(ctx context.Context, id int) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.snap.Rows {
		if r.ID == id {
			rec := r.Clone()
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *MemStore) FindByField(ctx context.Context, name, value string) ([]model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Record
	for _, r := range s.snap.Rows {
		if model.Match(r.Get(name), value, s.caseInsensitive) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *MemStore) Commit(ctx context.Context, fields map[string]string, targetID int) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCommits {
		return nil, ErrUnavailable
	}
	rec, err := applyCommit(&s.snap, fields, targetID, s.nowFn())
	if err != nil {
		return nil, err
	}
	s.Commits++
	return &rec, nil
}

func (s *MemStore) Snapshot(ctx context.Context) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone(), nil
}

func (s *MemStore) Replace(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap = snap.Clone()
	ensureColumns(&snap, s.snap.Columns)
	s.snap = snap
	return nil
}

// Seed installs a snapshot without counting as a commit. Test helper.
func (s *MemStore) Seed(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
}
