// Package main is the entry point for the early warning admin API server.
//
// It loads configuration, connects to PostgreSQL, wires the detection engine
// and serves the /v1/admin routes plus /health and /metrics. Shutdown is
// graceful on SIGINT and SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"

	"guardian/internal/api/handlers"
	"guardian/internal/app"
	"guardian/internal/config"
	"guardian/internal/core"
	"guardian/internal/dashboard"
	"guardian/internal/db"
	"guardian/internal/metrics"
	"guardian/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "guardian-api:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("guardian API starting",
		"environment", cfg.Environment,
		"build", cfg.Build,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.MigrateOnStart {
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		logger.Info("migrations applied", "versions", applied)
	}

	srv, detector, err := buildServer(ctx, cfg, pool, pool.Ping, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.Error("detector shutdown error", "error", err)
		}
	}()

	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires every admin handler over store. ping backs the database
// health probe and may be nil.
func buildServer(
	ctx context.Context,
	cfg *config.Config,
	store db.DBTX,
	ping func(context.Context) error,
	logger *slog.Logger,
) (*core.Server, *app.Detector, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating server: %w", err)
	}

	authenticator, err := core.NewAdminKeyAuthenticator(cfg.Security.AdminAPIKeyHash.Unmask())
	if err != nil {
		return nil, nil, fmt.Errorf("configuring admin authentication: %w", err)
	}
	srv.Authenticator = authenticator

	runMetrics, err := newRunMetrics(ctx, cfg, srv, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring metrics: %w", err)
	}

	detector, err := app.NewDetector(ctx, cfg, store, runMetrics, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("building detector: %w", err)
	}
	srv.Validator = detector.Validator

	if ping != nil {
		srv.HealthProbes = append(srv.HealthProbes, core.NewPingProbe("database", ping))
	}

	ruleHandler := handlers.NewRuleHandler(detector.Rules, logger)
	warningHandler := handlers.NewWarningHandler(detector.Warnings, detector.Validator, logger)
	detectionHandler := handlers.NewDetectionHandler(detector.Orchestrator, detector.Runs, detector.Validator, logger)
	dashboardHandler := handlers.NewDashboardHandler(
		dashboard.NewService(detector.Warnings, cfg.Detection.RecentWarningsLimit, logger),
	)

	srv.AdminRouteRegistrars = append(srv.AdminRouteRegistrars,
		ruleHandler.RegisterRoutes,
		warningHandler.RegisterRoutes,
		detectionHandler.RegisterRoutes,
		dashboardHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	logRoutes(srv.Router(), logger)
	return srv, detector, nil
}

// newRunMetrics selects the run metrics backend. The Prometheus recorder also
// collects request metrics and is served on /metrics.
func newRunMetrics(ctx context.Context, cfg *config.Config, srv *core.Server, logger *slog.Logger) (types.RunMetrics, error) {
	switch cfg.Observability.MetricsBackend {
	case "prometheus":
		rec := metrics.NewPrometheusRecorder(nil)
		srv.Metrics = rec
		srv.MetricsHandler = rec.Handler()
		return rec, nil
	case "cloudwatch":
		awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		return metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger), nil
	default:
		return nil, nil
	}
}

func logRoutes(r chi.Routes, logger *slog.Logger) {
	_ = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logger.Debug("route registered", "method", method, "route", route)
		return nil
	})
}

const shutdownGrace = 10 * time.Second

// runHTTPServer serves until SIGINT, SIGTERM or a listener failure, then
// drains in-flight requests for up to shutdownGrace.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Manual detection runs hold the connection for up to the run budget.
		WriteTimeout: cfg.Detection.MaxDuration + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("admin API listening", "addr", httpServer.Addr)
		listenErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("listening on %s: %w", httpServer.Addr, err)
	case <-ctx.Done():
		logger.Info("shutting down admin API", "grace", shutdownGrace)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("draining admin API: %w", err)
	}
	logger.Info("admin API stopped")
	return nil
}

// newLogger writes JSON to stdout. Unknown levels fall back to info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
