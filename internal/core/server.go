// Package core provides the HTTP chassis for the early warning admin API: a
// chi router with the cross-cutting middleware (recovery, request IDs,
// logging, metrics, admin authentication) and the JSON envelope helpers
// shared by every handler.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"guardian/internal/config"
)

// Server holds the dependencies of the admin API.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	// MetricsHandler is served at GET /metrics when set.
	MetricsHandler http.Handler

	// AdminRouteRegistrars mount domain handlers under /v1/admin. Populated
	// by main to keep core free of handler imports.
	AdminRouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer creates a Server. Routes are mounted separately with MountRoutes
// so tests can customize the registrars first.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}
