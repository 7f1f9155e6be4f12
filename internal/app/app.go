// Package app wires the detection engine from configuration. It is shared by
// the API server, the scheduled Lambda and the command-line runner so the
// three entry points build identical engines.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"guardian/internal/config"
	"guardian/internal/core"
	"guardian/internal/db"
	"guardian/internal/detection"
	"guardian/internal/notify"
	"guardian/internal/rules"
	"guardian/internal/types"
)

// Detector is a fully wired detection engine and the stores behind it.
type Detector struct {
	Orchestrator *detection.Orchestrator
	Rules        *rules.Service
	Warnings     *db.WarningRepository
	Runs         *db.JobHistoryRepository
	Validator    *core.Validator

	closers []func() error
}

// NewDetector builds the engine over store. runMetrics may be nil. On error
// every backend opened so far is closed.
func NewDetector(ctx context.Context, cfg *config.Config, store db.DBTX, runMetrics types.RunMetrics, logger *slog.Logger) (*Detector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Detector{
		Warnings:  db.NewWarningRepository(store),
		Runs:      db.NewJobHistoryRepository(store),
		Validator: core.NewValidator(logger),
	}
	d.Rules = rules.NewService(db.NewRuleRepository(store), d.Validator, logger)

	if cfg.Guard.Backend == "memory" && cfg.Environment != "local" {
		// The API server and the scheduled Lambda each hold their own memory
		// guard, so they can run detection at the same time.
		logger.Warn("memory run guard is process-local; set GUARD_BACKEND=postgres or redis when more than one process runs detection",
			"environment", cfg.Environment,
		)
	}

	guard, closeGuard, err := detection.NewGuard(ctx, cfg.Guard.Backend, db.NewJobLockRepository(store), cfg.Redis, nil)
	if err != nil {
		return nil, fmt.Errorf("building run guard: %w", err)
	}
	d.closers = append(d.closers, closeGuard)

	publisher, closePublisher, err := notify.New(ctx, cfg.Notify, cfg.AWS, logger)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("building notify publisher: %w", err)
	}
	d.closers = append(d.closers, closePublisher)

	d.Orchestrator = detection.NewOrchestrator(detection.Deps{
		Rules:     d.Rules,
		History:   db.NewHistoryRepository(store),
		Warnings:  d.Warnings,
		Guard:     guard,
		Publisher: publisher,
		Metrics:   runMetrics,
		Runs:      d.Runs,
		Logger:    logger,
	}, detection.Config{
		Workers:     cfg.Detection.Workers,
		MaxDuration: cfg.Detection.MaxDuration,
		GuardTTL:    cfg.Guard.TTL,
		HistoryDays: cfg.Detection.HistoryMaxDays,
	})

	logger.Info("detection engine wired",
		"guard_backend", cfg.Guard.Backend,
		"notify_backend", cfg.Notify.Backend,
		"workers", cfg.Detection.Workers,
		"max_duration", cfg.Detection.MaxDuration,
	)
	return d, nil
}

// Close releases the guard and publisher backends.
func (d *Detector) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
