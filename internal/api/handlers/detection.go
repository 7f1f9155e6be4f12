package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"guardian/internal/core"
	"guardian/internal/detection"
	"guardian/internal/types"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

// DetectionRunner starts detection runs. Satisfied by detection.Orchestrator.
type DetectionRunner interface {
	RunDetection(ctx context.Context, opts detection.RunOptions) (*types.RunSummary, error)
}

// RunLister reads the run history. Satisfied by db.JobHistoryRepository.
type RunLister interface {
	ListRecent(ctx context.Context, jobType string, limit int) ([]types.JobRun, error)
}

// RunDetectionRequest is the optional body of POST /detection/run.
type RunDetectionRequest struct {
	MaxDurationSeconds *int `json:"max_duration_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
}

// DetectionHandler serves /v1/admin/detection.
type DetectionHandler struct {
	runner    DetectionRunner
	runs      RunLister
	validator *core.Validator
	logger    *slog.Logger
}

// NewDetectionHandler creates a DetectionHandler. runs may be nil, in which
// case the run history route answers with an empty list.
func NewDetectionHandler(runner DetectionRunner, runs RunLister, v *core.Validator, l *slog.Logger) *DetectionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DetectionHandler{runner: runner, runs: runs, validator: v, logger: l}
}

// RegisterRoutes mounts the detection routes.
func (h *DetectionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/detection", func(r chi.Router) {
		r.Post("/run", h.Run)
		r.Get("/runs", h.ListRuns)
	})
}

// Run handles POST /v1/admin/detection/run. It blocks until the run finishes
// and returns its summary. A run already in progress yields 409.
//
// The run is detached from the request deadline; its own max duration bounds
// it instead.
func (h *DetectionHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunDetectionRequest
	if err := core.DecodeOptionalJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if h.validator != nil {
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	opts := detection.RunOptions{Trigger: types.TriggerManual}
	if req.MaxDurationSeconds != nil {
		opts.MaxDuration = time.Duration(*req.MaxDurationSeconds) * time.Second
	}

	h.logger.InfoContext(r.Context(), "manual detection run requested", "actor", types.ActorID(r.Context()))

	summary, err := h.runner.RunDetection(context.WithoutCancel(r.Context()), opts)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, summary)
}

// ListRuns handles GET /v1/admin/detection/runs?limit=n, newest first.
func (h *DetectionHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		core.Error(w, r, err)
		return
	}
	switch {
	case limit <= 0:
		limit = defaultRunsLimit
	case limit > maxRunsLimit:
		limit = maxRunsLimit
	}

	runs := []types.JobRun{}
	if h.runs != nil {
		runs, err = h.runs.ListRecent(r.Context(), types.JobTypeDetection, limit)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		if runs == nil {
			runs = []types.JobRun{}
		}
	}
	core.Data(w, r, http.StatusOK, runs)
}
