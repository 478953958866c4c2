package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talent-ops/intake-cli/internal/model"
	"github.com/talent-ops/intake-cli/internal/tabular"
	"github.com/talent-ops/intake-cli/internal/workflow"
)

func TestRunAuto_NewRecord(t *testing.T) {
	st := tabular.NewMem([]string{"氏名", "会社名"})
	engine := workflow.NewEngine(st, &stubExtractor{res: &model.ExtractionResult{
		Fields:            map[string]string{"氏名": "山田太郎", "会社名": model.NoData},
		NewFieldProposals: map[string]string{"希望勤務地": "東京"},
		Usage:             model.TokenUsage{PromptTokens: 420, CompletionTokens: 96},
	}})

	rec, usage, err := runAuto(context.Background(), engine, "山田太郎さん、東京勤務希望。")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.ID)
	assert.Equal(t, "東京", rec.Fields["希望勤務地"])
	assert.Equal(t, 1, st.Commits)
	assert.Equal(t, int64(516), usage.Total())
}

func TestRunAuto_UpdatesNewestDuplicate(t *testing.T) {
	st := tabular.NewMem([]string{"氏名", "会社名"})
	st.Seed(model.Snapshot{
		Columns: []string{"氏名", "会社名", "給与"},
		Rows: []model.Record{
			{ID: 1, Timestamp: "2026-07-01 09:00:00", Fields: map[string]string{"氏名": "山田太郎", "給与": "280万円"}},
			{ID: 2, Timestamp: "2026-08-15 09:00:00", Fields: map[string]string{"氏名": "山田太郎", "給与": "300万円"}},
		},
	})
	engine := workflow.NewEngine(st, &stubExtractor{res: &model.ExtractionResult{
		Fields: map[string]string{"氏名": "山田太郎", "給与": "350万円"},
	}})

	rec, _, err := runAuto(context.Background(), engine, "山田太郎さんの年収は350万円。")
	require.NoError(t, err)
	// The newest record wins as merge target and the proposed value overwrites.
	assert.Equal(t, 2, rec.ID)
	assert.Equal(t, "350万円", rec.Fields["給与"])
}

func TestRunAuto_NoIdentityExtracted(t *testing.T) {
	st := tabular.NewMem([]string{"氏名", "会社名"})
	engine := workflow.NewEngine(st, &stubExtractor{res: &model.ExtractionResult{
		Fields: map[string]string{"氏名": model.NoData},
	}})

	_, _, err := runAuto(context.Background(), engine, "名前のない文章。")
	require.Error(t, err)
	assert.Equal(t, 0, st.Commits)
	assert.Equal(t, 0, engine.Sessions().Len())
}
