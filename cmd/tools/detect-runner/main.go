// Package main provides a CLI that runs detection directly against the
// database, bypassing the Lambda and the admin API.
//
// Usage:
//
//	detect-runner [--reference-time 2026-03-10T02:00:00Z] [--max-duration 2m]
//	detect-runner --dry-run --reference-time 2026-03-10T02:00:00Z
//	detect-runner --migrate
//	detect-runner --runs 10
//
// Configuration comes from the same environment variables as the services.
// --env-file loads an extra dotenv file first.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"guardian/internal/app"
	"guardian/internal/config"
	"guardian/internal/db"
	"guardian/internal/detection"
	"guardian/internal/types"
)

// options are the parsed command-line flags.
type options struct {
	EnvFile       string
	ReferenceTime *time.Time
	MaxDuration   time.Duration
	DryRun        bool
	Migrate       bool
	Runs          int
}

// lambdaPayload mirrors the detector Lambda input for --dry-run.
type lambdaPayload struct {
	ReferenceTime      *time.Time `json:"reference_time,omitempty"`
	MaxDurationSeconds int        `json:"max_duration_seconds,omitempty"`
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if opts.DryRun {
		if err := printJSON(os.Stdout, opts.payload()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			logger.Error("failed to load env file", "file", opts.EnvFile, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, opts, os.Stdout, logger); err != nil {
		logger.Error("detect-runner failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses args into options. Usage goes to out.
func parseFlags(args []string, out io.Writer) (*options, error) {
	fs := flag.NewFlagSet("detect-runner", flag.ContinueOnError)
	fs.SetOutput(out)

	envFile := fs.String("env-file", "", "Load environment variables from this dotenv file")
	refTime := fs.String("reference-time", "", "Evaluate as of this instant (RFC3339, e.g., 2026-03-10T02:00:00Z)")
	maxDuration := fs.Duration("max-duration", 0, "Override the run budget (e.g., 2m)")
	dryRun := fs.Bool("dry-run", false, "Print the Lambda JSON payload without executing")
	migrate := fs.Bool("migrate", false, "Apply database migrations and exit")
	runs := fs.Int("runs", 0, "List the N most recent detection runs and exit")

	fs.Usage = func() {
		fmt.Fprintf(out, "Usage: detect-runner [flags]\n\n")
		fmt.Fprintf(out, "Run early warning detection directly, bypassing Lambda.\n\n")
		fmt.Fprintf(out, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	opts := &options{
		EnvFile:     *envFile,
		MaxDuration: *maxDuration,
		DryRun:      *dryRun,
		Migrate:     *migrate,
		Runs:        *runs,
	}

	if *refTime != "" {
		t, err := time.Parse(time.RFC3339, *refTime)
		if err != nil {
			return nil, fmt.Errorf("invalid --reference-time %q: expected RFC3339, e.g., 2026-03-10T02:00:00Z", *refTime)
		}
		t = t.UTC()
		opts.ReferenceTime = &t
	}
	if opts.MaxDuration < 0 {
		return nil, fmt.Errorf("--max-duration must not be negative")
	}
	if opts.Runs < 0 {
		return nil, fmt.Errorf("--runs must not be negative")
	}
	if opts.Migrate && opts.Runs > 0 {
		return nil, fmt.Errorf("--migrate and --runs are mutually exclusive")
	}
	return opts, nil
}

func (o *options) payload() lambdaPayload {
	return lambdaPayload{
		ReferenceTime:      o.ReferenceTime,
		MaxDurationSeconds: int(o.MaxDuration / time.Second),
	}
}

func (o *options) runOptions() detection.RunOptions {
	ro := detection.RunOptions{
		Trigger:     types.TriggerManual,
		MaxDuration: o.MaxDuration,
	}
	if o.ReferenceTime != nil {
		ro.ReferenceTime = *o.ReferenceTime
	}
	return ro
}

func execute(ctx context.Context, opts *options, out io.Writer, logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()
	logger.Info("database connection established")

	switch {
	case opts.Migrate:
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		logger.Info("migrations applied", "versions", applied)
		return printJSON(out, map[string][]string{"applied": applied})

	case opts.Runs > 0:
		runs, err := db.NewJobHistoryRepository(pool).ListRecent(ctx, types.JobTypeDetection, opts.Runs)
		if err != nil {
			return err
		}
		return printJSON(out, runs)
	}

	detector, err := app.NewDetector(ctx, cfg, pool, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.Error("detector shutdown error", "error", err)
		}
	}()

	summary, err := detector.Orchestrator.RunDetection(ctx, opts.runOptions())
	if err != nil {
		return err
	}
	return printJSON(out, summary)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
