package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/core"
	"guardian/internal/detection"
	"guardian/internal/types"
)

type mockRunner struct {
	summary *types.RunSummary
	err     error

	lastOpts    detection.RunOptions
	ctxCanceled bool
	calls       int
}

func (m *mockRunner) RunDetection(ctx context.Context, opts detection.RunOptions) (*types.RunSummary, error) {
	m.calls++
	m.lastOpts = opts
	_, hasDeadline := ctx.Deadline()
	m.ctxCanceled = hasDeadline || ctx.Err() != nil
	return m.summary, m.err
}

type mockRunLister struct {
	runs      []types.JobRun
	err       error
	lastType  string
	lastLimit int
}

func (m *mockRunLister) ListRecent(_ context.Context, jobType string, limit int) ([]types.JobRun, error) {
	m.lastType, m.lastLimit = jobType, limit
	return m.runs, m.err
}

func sampleSummary() *types.RunSummary {
	start := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	return &types.RunSummary{
		RunID:           "run_1",
		Trigger:         types.TriggerManual,
		RulesEvaluated:  2,
		EvaluatedUsers:  10,
		WarningsCreated: 1,
		SkippedUsers:    []string{},
		StartedAt:       start,
		FinishedAt:      start.Add(time.Second),
	}
}

func TestDetectionHandler_Run(t *testing.T) {
	runner := &mockRunner{summary: sampleSummary()}
	router := newRouter(NewDetectionHandler(runner, nil, core.NewValidator(nil), nil).RegisterRoutes)

	w := do(t, router, http.MethodPost, "/detection/run", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, types.TriggerManual, runner.lastOpts.Trigger)
	assert.Zero(t, runner.lastOpts.MaxDuration)

	var got types.RunSummary
	decodeData(t, w, &got)
	assert.Equal(t, 1, got.WarningsCreated)
	assert.Equal(t, 10, got.EvaluatedUsers)
	assert.NotNil(t, got.SkippedUsers)
}

func TestDetectionHandler_RunMaxDuration(t *testing.T) {
	runner := &mockRunner{summary: sampleSummary()}
	router := newRouter(NewDetectionHandler(runner, nil, core.NewValidator(nil), nil).RegisterRoutes)

	w := do(t, router, http.MethodPost, "/detection/run", map[string]any{"max_duration_seconds": 30})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30*time.Second, runner.lastOpts.MaxDuration)

	w = do(t, router, http.MethodPost, "/detection/run", map[string]any{"max_duration_seconds": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1, runner.calls)
}

func TestDetectionHandler_RunDetachedFromRequestDeadline(t *testing.T) {
	runner := &mockRunner{summary: sampleSummary()}
	h := NewDetectionHandler(runner, nil, nil, nil)
	router := newRouter(h.RegisterRoutes)

	wrapped := core.ContextTimeoutMiddleware(time.Minute)(router)
	w := do(t, wrapped, http.MethodPost, "/detection/run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, runner.ctxCanceled, "run context must not inherit the request deadline")
}

func TestDetectionHandler_RunConflict(t *testing.T) {
	runner := &mockRunner{err: types.NewAppError(types.ErrCodeConflictDetectionBusy, "a detection run is already in progress", nil)}
	router := newRouter(NewDetectionHandler(runner, nil, nil, nil).RegisterRoutes)

	w := do(t, router, http.MethodPost, "/detection/run", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(types.ErrCodeConflictDetectionBusy), errorCode(t, w))
}

func TestDetectionHandler_ListRuns(t *testing.T) {
	finished := time.Date(2026, 3, 10, 2, 1, 0, 0, time.UTC)
	lister := &mockRunLister{runs: []types.JobRun{
		{ID: 7, JobType: types.JobTypeDetection, Status: types.JobStatusSuccess, FinishedAt: &finished, ItemsCount: 3},
	}}
	router := newRouter(NewDetectionHandler(&mockRunner{}, lister, nil, nil).RegisterRoutes)

	tests := []struct {
		query     string
		wantLimit int
	}{
		{"", defaultRunsLimit},
		{"?limit=5", 5},
		{"?limit=0", defaultRunsLimit},
		{"?limit=1000", maxRunsLimit},
	}
	for _, tt := range tests {
		w := do(t, router, http.MethodGet, "/detection/runs"+tt.query, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, tt.wantLimit, lister.lastLimit, tt.query)
		assert.Equal(t, types.JobTypeDetection, lister.lastType)
	}

	w := do(t, router, http.MethodGet, "/detection/runs", nil)
	var got []types.JobRun
	decodeData(t, w, &got)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
}

func TestDetectionHandler_ListRunsErrors(t *testing.T) {
	lister := &mockRunLister{err: types.NewAppError(types.ErrCodeInternalDB, "failed to list runs", errors.New("boom"))}
	router := newRouter(NewDetectionHandler(&mockRunner{}, lister, nil, nil).RegisterRoutes)

	w := do(t, router, http.MethodGet, "/detection/runs", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(t, router, http.MethodGet, "/detection/runs?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	noHistory := newRouter(NewDetectionHandler(&mockRunner{}, nil, nil, nil).RegisterRoutes)
	w = do(t, noHistory, http.MethodGet, "/detection/runs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[]}`, w.Body.String())
}
