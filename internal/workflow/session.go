package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talent-ops/intake-cli/internal/conflict"
	"github.com/talent-ops/intake-cli/internal/model"
)

// State names a position in the reconciliation state machine.
type State string

const (
	StateExtractionComplete  State = "extraction_complete"
	StateDuplicateFound      State = "duplicate_found"
	StateMergeTargetSelected State = "merge_target_selected"
	StateSchemaPending       State = "schema_pending"
	StateConflictPending     State = "conflict_pending"
	StateReadyToCommit       State = "ready_to_commit"
	StateCommitted           State = "committed"
)

// Session holds everything one in-flight run has accumulated. All mutation
// is confined to this value until Commit; the store is never touched before
// the committed transition.
type Session struct {
	ID           string            `json:"id"`
	State        State             `json:"state"`
	OriginalText string            `json:"original_text"`

	// Fields is the accumulator: the values that will be written at commit.
	Fields map[string]string `json:"fields"`
	// Proposals are extracted fields that fit no existing column, awaiting
	// schema decisions.
	Proposals map[string]string `json:"proposals,omitempty"`

	// Duplicates are candidate merge targets, most recent write first.
	Duplicates []model.Record `json:"duplicates,omitempty"`
	// TargetID is the chosen merge target; 0 means a new record.
	TargetID int `json:"target_id,omitempty"`

	// Conflicts are the surfaced entries still needing a decision.
	Conflicts []conflict.Entry `json:"conflicts,omitempty"`
	resolved  map[string]bool

	Usage     model.TokenUsage `json:"usage"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Unresolved reports how many surfaced conflicts still lack a decision.
func (s *Session) Unresolved() int {
	n := 0
	for _, e := range s.Conflicts {
		if !s.resolved[e.FieldName] {
			n++
		}
	}
	return n
}

// DefaultSessionTTL is how long an abandoned session survives.
const DefaultSessionTTL = 30 * time.Minute

// Manager is an in-memory session store with TTL expiry. The mutex guards
// the map only; a returned *Session is mutated by the engine outside any
// lock, so concurrent operations on the same session id are the caller's
// problem. The workflow assumes one operator per session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	clock    func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL overrides the session expiry window.
func WithTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.ttl = d
	}
}

// WithClock injects a time source for tests.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.clock = clock
	}
}

// NewManager creates an empty session manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		ttl:      DefaultSessionTTL,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers a new session and assigns its id and timestamps.
func (m *Manager) Create(s *Session) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()

	now := m.clock()
	s.ID = uuid.New().String()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.resolved == nil {
		s.resolved = make(map[string]bool)
	}
	m.sessions[s.ID] = s
	return s
}

// Get returns the session with the given id, refreshing its expiry.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()

	s, ok := m.sessions[id]
	if !ok {
		return nil, NewErrorf(KindSessionNotFound, "no session %q", id)
	}
	s.UpdatedAt = m.clock()
	return s, nil
}

// Delete discards a session. Deleting an unknown id is a no-op.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeLocked()
	return len(m.sessions)
}

func (m *Manager) purgeLocked() {
	cutoff := m.clock().Add(-m.ttl)
	for id, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}
