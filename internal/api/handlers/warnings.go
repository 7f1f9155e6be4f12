package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"guardian/internal/core"
	"guardian/internal/types"
)

const maxNotesLength = 2000

// WarningStore is the warning persistence contract used by the handler.
// Satisfied by db.WarningRepository.
type WarningStore interface {
	List(ctx context.Context, filter types.WarningFilter) ([]*types.EarlyWarning, int, error)
	Acknowledge(ctx context.Context, id, actorID string, notes *string) (*types.EarlyWarning, error)
}

// AcknowledgeRequest is the optional body of POST /warnings/{id}/acknowledge.
type AcknowledgeRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// WarningHandler serves /v1/admin/warnings.
type WarningHandler struct {
	store     WarningStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewWarningHandler creates a WarningHandler. v may be nil, in which case the
// notes length is still enforced.
func NewWarningHandler(store WarningStore, v *core.Validator, l *slog.Logger) *WarningHandler {
	if l == nil {
		l = slog.Default()
	}
	return &WarningHandler{store: store, validator: v, logger: l}
}

// RegisterRoutes mounts the warning routes.
func (h *WarningHandler) RegisterRoutes(r chi.Router) {
	r.Route("/warnings", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/{id}/acknowledge", h.Acknowledge)
	})
}

// List handles GET /v1/admin/warnings. Supported query parameters are
// severity, acknowledged, user_id, rule_id, page and page_size.
func (h *WarningHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseWarningFilter(r.URL.Query())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	warnings, total, err := h.store.List(r.Context(), filter)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if warnings == nil {
		warnings = []*types.EarlyWarning{}
	}

	core.JSON(w, r, http.StatusOK, types.ListResponse[*types.EarlyWarning]{
		Data:     warnings,
		PageInfo: types.NewPageInfo(filter.PageRequest, total),
	})
}

// Acknowledge handles POST /v1/admin/warnings/{id}/acknowledge. The caller's
// actor ID is recorded as acknowledged_by.
func (h *WarningHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	var req AcknowledgeRequest
	if err := core.DecodeOptionalJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validate(req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	actor := types.ActorID(r.Context())
	warning, err := h.store.Acknowledge(r.Context(), id, actor, req.Notes)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "warning acknowledged",
		"warning_id", id,
		"user_id", warning.UserID,
		"actor", actor,
	)
	core.Data(w, r, http.StatusOK, warning)
}

func (h *WarningHandler) validate(req AcknowledgeRequest) error {
	if h.validator != nil {
		return h.validator.ValidateStruct(req)
	}
	if req.Notes != nil && len(*req.Notes) > maxNotesLength {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
			"notes must be at most 2000 characters", nil, map[string]any{"field": "notes"})
	}
	return nil
}

// parseWarningFilter builds a filter from query parameters. Unknown severity
// values and malformed booleans or integers are rejected.
func parseWarningFilter(q url.Values) (types.WarningFilter, error) {
	var filter types.WarningFilter

	if v := q.Get("severity"); v != "" {
		sev, err := types.ParseSeverity(v)
		if err != nil {
			return filter, err
		}
		filter.Severity = &sev
	}

	if v := q.Get("acknowledged"); v != "" {
		ack, err := strconv.ParseBool(v)
		if err != nil {
			return filter, invalidQueryParam("acknowledged", err)
		}
		filter.Acknowledged = &ack
	}

	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}
	if v := q.Get("rule_id"); v != "" {
		filter.RuleID = &v
	}

	var err error
	if filter.Page, err = intParam(q, "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = intParam(q, "page_size"); err != nil {
		return filter, err
	}
	if filter.Page > types.MaxPage {
		return filter, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
			fmt.Sprintf("page must be at most %d", types.MaxPage), nil, map[string]any{"field": "page"})
	}
	filter.Adjust()

	return filter, nil
}

// intParam parses an optional integer query parameter. Absent means 0.
func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalidQueryParam(name, err)
	}
	return n, nil
}

func invalidQueryParam(name string, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidValue,
		"invalid value for query parameter "+name, err, map[string]any{"field": name})
}
