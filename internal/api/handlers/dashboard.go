package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"guardian/internal/core"
	"guardian/internal/types"
)

// DashboardProvider builds the admin dashboard. Satisfied by dashboard.Service.
type DashboardProvider interface {
	GetDashboard(ctx context.Context) (*types.WarningDashboard, error)
}

// DashboardHandler serves GET /v1/admin/dashboard.
type DashboardHandler struct {
	provider DashboardProvider
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(provider DashboardProvider) *DashboardHandler {
	return &DashboardHandler{provider: provider}
}

// RegisterRoutes mounts the dashboard route.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard", h.Get)
}

// Get handles GET /v1/admin/dashboard.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.provider.GetDashboard(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, d)
}
