package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout applies when the config carries no RequestTimeout.
const defaultRequestTimeout = 30 * time.Second

// MountRoutes registers the global middleware, the public routes and the
// authenticated /v1/admin group.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/health", s.HandleHealth)
	if s.MetricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", s.MetricsHandler)
	}

	s.router.Route("/v1/admin", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		for _, registrar := range s.AdminRouteRegistrars {
			registrar(r)
		}
	})
}

// registerGlobalMiddleware applies middleware in order:
//  1. Recoverer        outermost, catches every panic
//  2. ContextTimeout   soft request deadline
//  3. RequestID        correlation ID for logs and error bodies
//  4. SecurityHeaders
//  5. RequestLogger    redacts credentials
//  6. Metrics
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(s.MetricsMiddleware)
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}
