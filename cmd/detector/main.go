// Package main is the entrypoint for the scheduled detection Lambda.
//
// An EventBridge schedule invokes the handler with an optional Payload. The
// handler runs one detection pass through the shared orchestrator and reports
// the run summary. A run already in progress elsewhere is not an error: the
// invocation is reported as skipped so the schedule does not retry it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"guardian/internal/app"
	"guardian/internal/config"
	"guardian/internal/db"
	"guardian/internal/detection"
	"guardian/internal/metrics"
	"guardian/internal/types"
)

// deadlineMargin is reserved at the end of the invocation so the summary can
// be written and returned before Lambda kills the process.
const deadlineMargin = 15 * time.Second

// Result statuses.
const (
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
)

// Payload is the EventBridge input. Every field is optional.
type Payload struct {
	// ReferenceTime replays the evaluation as of a past instant.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
	// MaxDurationSeconds overrides the configured run budget.
	MaxDurationSeconds int `json:"max_duration_seconds,omitempty"`
}

// Result is returned to the invoker.
type Result struct {
	Status  string            `json:"status"`
	Reason  string            `json:"reason,omitempty"`
	Summary *types.RunSummary `json:"summary,omitempty"`
}

// Runner starts a detection run. Satisfied by detection.Orchestrator.
type Runner interface {
	RunDetection(ctx context.Context, opts detection.RunOptions) (*types.RunSummary, error)
}

// Handler holds the dependencies initialized during cold start.
type Handler struct {
	Runner Runner
	Logger *slog.Logger
}

// Handle runs one scheduled detection pass.
func (h *Handler) Handle(ctx context.Context, payload Payload) (*Result, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if payload.MaxDurationSeconds < 0 {
		return nil, fmt.Errorf("max_duration_seconds must not be negative, got %d", payload.MaxDurationSeconds)
	}

	opts := detection.RunOptions{
		Trigger:     types.TriggerScheduled,
		MaxDuration: time.Duration(payload.MaxDurationSeconds) * time.Second,
	}
	if payload.ReferenceTime != nil {
		opts.ReferenceTime = payload.ReferenceTime.UTC()
	}
	opts.MaxDuration = capToDeadline(ctx, opts.MaxDuration, time.Now())

	logger.InfoContext(ctx, "detector handler invoked",
		"reference_time", opts.ReferenceTime,
		"max_duration", opts.MaxDuration,
	)

	summary, err := h.Runner.RunDetection(ctx, opts)
	if err != nil {
		if types.HasCode(err, types.ErrCodeConflictDetectionBusy) {
			logger.InfoContext(ctx, "detection run already in progress, skipping")
			return &Result{Status: StatusSkipped, Reason: "detection run already in progress"}, nil
		}
		logger.ErrorContext(ctx, "detection run failed", "error", err)
		return nil, fmt.Errorf("detection run failed: %w", err)
	}

	return &Result{Status: StatusCompleted, Summary: summary}, nil
}

// capToDeadline shortens d so the run ends deadlineMargin before the
// invocation deadline. A zero d means the configured budget, which is capped
// the same way. When there is no deadline d is returned unchanged.
func capToDeadline(ctx context.Context, d time.Duration, now time.Time) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return d
	}
	remaining := deadline.Sub(now) - deadlineMargin
	if remaining <= 0 {
		remaining = time.Second
	}
	if d <= 0 || d > remaining {
		return remaining
	}
	return d
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("Detector Lambda initializing (cold start)")

	handler, cleanup, err := newHandler(context.Background(), logger)
	if err != nil {
		logger.Error("Failed to initialize detector", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	logger.Info("Detector Lambda initialized")
	lambda.Start(handler.Handle)
}

// newHandler wires the database, the detection engine and CloudWatch run
// metrics.
func newHandler(ctx context.Context, logger *slog.Logger) (*Handler, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	var runMetrics types.RunMetrics
	if cfg.Observability.MetricsBackend == "cloudwatch" {
		awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		runMetrics = metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
	}

	// The Lambda has no scrape endpoint, so Prometheus is not used here.
	detector, err := app.NewDetector(ctx, cfg, pool, runMetrics, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := detector.Close(); err != nil {
			logger.Error("detector shutdown error", "error", err)
		}
		pool.Close()
	}
	return &Handler{Runner: detector.Orchestrator, Logger: logger}, cleanup, nil
}
