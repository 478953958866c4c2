package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talent-ops/intake-cli/internal/conflict"
)

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager()

	sess := m.Create(&Session{State: StateExtractionComplete})
	require.NotEmpty(t, sess.ID)
	assert.False(t, sess.CreatedAt.IsZero())

	got, err := m.Get(sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)
}

func TestManager_UnknownSession(t *testing.T) {
	m := NewManager()

	_, err := m.Get("missing")
	require.Error(t, err)
	assert.Equal(t, KindSessionNotFound, KindOf(err))
}

func TestManager_Delete(t *testing.T) {
	m := NewManager()
	sess := m.Create(&Session{})

	m.Delete(sess.ID)
	_, err := m.Get(sess.ID)
	require.Error(t, err)
	assert.Equal(t, KindSessionNotFound, KindOf(err))

	m.Delete("missing") // no-op
}

func TestManager_ExpiresAbandonedSessions(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m := NewManager(WithTTL(30*time.Minute), WithClock(func() time.Time { return now }))

	sess := m.Create(&Session{})

	now = now.Add(31 * time.Minute)
	_, err := m.Get(sess.ID)
	require.Error(t, err)
	assert.Equal(t, KindSessionNotFound, KindOf(err))
	assert.Equal(t, 0, m.Len())
}

func TestManager_GetRefreshesExpiry(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	m := NewManager(WithTTL(30*time.Minute), WithClock(func() time.Time { return now }))

	sess := m.Create(&Session{})

	// Touch the session every 20 minutes; it must stay alive past the TTL.
	for i := 0; i < 3; i++ {
		now = now.Add(20 * time.Minute)
		_, err := m.Get(sess.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, m.Len())
}

func TestSession_Unresolved(t *testing.T) {
	s := &Session{
		Conflicts: []conflict.Entry{{FieldName: "給与"}, {FieldName: "会社名"}},
		resolved:  map[string]bool{"給与": true},
	}
	assert.Equal(t, 1, s.Unresolved())
}
