// Package handlers contains the HTTP handlers of the early warning admin API.
// Every handler depends on a small local interface so it can be tested
// without a database, and mounts itself through RegisterRoutes under the
// authenticated /v1/admin router.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"guardian/internal/core"
	"guardian/internal/rules"
	"guardian/internal/types"
)

// RuleService is the rule registry contract. Satisfied by rules.Service.
type RuleService interface {
	Create(ctx context.Context, req rules.CreateRuleRequest) (*types.WarningRule, error)
	Update(ctx context.Context, id string, req rules.UpdateRuleRequest) (*types.WarningRule, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*types.WarningRule, error)
	List(ctx context.Context) ([]*types.WarningRule, error)
}

// RuleHandler serves /v1/admin/rules.
type RuleHandler struct {
	svc    RuleService
	logger *slog.Logger
}

// NewRuleHandler creates a RuleHandler.
func NewRuleHandler(svc RuleService, l *slog.Logger) *RuleHandler {
	if l == nil {
		l = slog.Default()
	}
	return &RuleHandler{svc: svc, logger: l}
}

// RegisterRoutes mounts the rule routes.
func (h *RuleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// Create handles POST /v1/admin/rules.
func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rules.CreateRuleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	rule, err := h.svc.Create(r.Context(), req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "rule created",
		"rule_id", rule.ID,
		"type", rule.Type,
		"actor", types.ActorID(r.Context()),
	)
	core.Data(w, r, http.StatusCreated, rule)
}

// List handles GET /v1/admin/rules.
func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if list == nil {
		list = []*types.WarningRule{}
	}
	core.Data(w, r, http.StatusOK, list)
}

// Get handles GET /v1/admin/rules/{id}.
func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, rule)
}

// Update handles PATCH /v1/admin/rules/{id}.
func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req rules.UpdateRuleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	rule, err := h.svc.Update(r.Context(), id, req)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "rule updated", "rule_id", id, "actor", types.ActorID(r.Context()))
	core.Data(w, r, http.StatusOK, rule)
}

// Delete handles DELETE /v1/admin/rules/{id}. The rule's warnings are removed
// with it.
func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "rule deleted", "rule_id", id, "actor", types.ActorID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
