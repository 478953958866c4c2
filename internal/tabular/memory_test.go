package tabular

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talent-ops/intake-cli/internal/model"
)

func TestMemStore_CommitCounting(t *testing.T) {
	t.Parallel()

	s := NewMem(minimalKeys)
	ctx := context.Background()

	_, err := s.Commit(ctx, map[string]string{"氏名": "山田太郎"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Commits)

	s.FailCommits = true
	_, err = s.Commit(ctx, map[string]string{"氏名": "佐藤花子"}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, s.Commits)
}

func TestMemStore_SeedDoesNotCount(t *testing.T) {
	t.Parallel()

	s := NewMem(minimalKeys)
	s.Seed(model.Snapshot{
		Columns: minimalKeys,
		Rows:    []model.Record{{ID: 5, Fields: map[string]string{"氏名": "山田太郎"}}},
	})
	assert.Equal(t, 0, s.Commits)

	rec, err := s.Get(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, rec)

	// New commits continue from the seeded max id.
	added, err := s.Commit(context.Background(), map[string]string{"氏名": "新規"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, added.ID)
}

func TestMemStore_ReplaceBackfillsMissingColumns(t *testing.T) {
	t.Parallel()

	s := NewMem(minimalKeys)
	remote := model.Snapshot{
		Columns: []string{"氏名"},
		Rows: []model.Record{
			{ID: 3, Timestamp: "2026-01-01 00:00:00", Fields: map[string]string{"氏名": "山田太郎"}},
		},
	}
	require.NoError(t, s.Replace(context.Background(), remote))

	rec, err := s.Get(context.Background(), 3)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.NoData, rec.Fields["会社名"])
}

func TestMemStore_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := NewMem(minimalKeys)
	_, err := s.Commit(context.Background(), map[string]string{"氏名": "山田太郎"}, 0)
	require.NoError(t, err)

	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	snap.Rows[0].Fields["氏名"] = "mutated"

	again, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "山田太郎", again.Rows[0].Fields["氏名"])
}
