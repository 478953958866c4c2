package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talent-ops/intake-cli/internal/model"
	"github.com/talent-ops/intake-cli/internal/tabular"
	"github.com/talent-ops/intake-cli/internal/workflow"
)

type stubExtractor struct {
	res *model.ExtractionResult
	err error
}

func (s *stubExtractor) Extract(ctx context.Context, text string, knownSchema []string) (*model.ExtractionResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := &model.ExtractionResult{
		Fields:            make(map[string]string, len(s.res.Fields)),
		NewFieldProposals: s.res.NewFieldProposals,
		Usage:             s.res.Usage,
	}
	for k, v := range s.res.Fields {
		out.Fields[k] = v
	}
	return out, nil
}

func newTestRouter(t *testing.T, ex *stubExtractor) (http.Handler, *tabular.MemStore) {
	t.Helper()
	st := tabular.NewMem([]string{"氏名", "会社名"})
	engine := workflow.NewEngine(st, ex)
	return newRouter(engine, st), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestRouter(t, &stubExtractor{res: &model.ExtractionResult{}})

	rr := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestRouter_FullRunLifecycle(t *testing.T) {
	h, st := newTestRouter(t, &stubExtractor{res: &model.ExtractionResult{
		Fields: map[string]string{"氏名": "山田太郎", "会社名": model.NoData},
	}})

	rr := doJSON(t, h, http.MethodPost, "/runs", map[string]string{"text": "山田太郎さんです。"})
	require.Equal(t, http.StatusCreated, rr.Code)

	var sess workflow.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, workflow.StateExtractionComplete, sess.State)

	rr = doJSON(t, h, http.MethodPost, "/runs/"+sess.ID+"/identity", map[string]string{"name": "山田太郎"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	assert.Equal(t, workflow.StateReadyToCommit, sess.State)

	rr = doJSON(t, h, http.MethodPost, "/runs/"+sess.ID+"/commit", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var result struct {
		Record model.Record `json:"record"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Record.ID)
	assert.Equal(t, "山田太郎", result.Record.Fields["氏名"])
	assert.Equal(t, 1, st.Commits)
}

func TestRouter_RecordsEndpoint(t *testing.T) {
	h, st := newTestRouter(t, &stubExtractor{res: &model.ExtractionResult{}})
	st.Seed(model.Snapshot{
		Columns: []string{"氏名", "会社名"},
		Rows: []model.Record{{
			ID: 1, Timestamp: "2026-08-01 10:00:00",
			Fields: map[string]string{"氏名": "佐藤花子"},
		}},
	})

	rr := doJSON(t, h, http.MethodGet, "/records", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "佐藤花子", snap.Rows[0].Fields["氏名"])
}

func TestRouter_ErrorMapping(t *testing.T) {
	h, _ := newTestRouter(t, &stubExtractor{res: &model.ExtractionResult{
		Fields: map[string]string{"氏名": "山田太郎"},
	}})

	t.Run("empty text is 400", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/runs", map[string]string{"text": ""})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), string(workflow.KindValidation))
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/runs/missing/commit", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("out-of-sequence step is 409", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/runs", map[string]string{"text": "text"})
		require.Equal(t, http.StatusCreated, rr.Code)
		var sess workflow.Session
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))

		rr = doJSON(t, h, http.MethodPost, "/runs/"+sess.ID+"/commit", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestRouter_ExtractionFailureIs502(t *testing.T) {
	h, _ := newTestRouter(t, &stubExtractor{err: fmt.Errorf("model unreachable")})

	rr := doJSON(t, h, http.MethodPost, "/runs", map[string]string{"text": "text"})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), string(workflow.KindExtractionFailure))
}

func TestRouter_DeleteAbandonsSession(t *testing.T) {
	h, st := newTestRouter(t, &stubExtractor{res: &model.ExtractionResult{
		Fields: map[string]string{"氏名": "山田太郎"},
	}})

	rr := doJSON(t, h, http.MethodPost, "/runs", map[string]string{"text": "text"})
	require.Equal(t, http.StatusCreated, rr.Code)
	var sess workflow.Session
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))

	rr = doJSON(t, h, http.MethodDelete, "/runs/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/runs/"+sess.ID+"/commit", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Abandonment writes nothing.
	assert.Equal(t, 0, st.Commits)
}
