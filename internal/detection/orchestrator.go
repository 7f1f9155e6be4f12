package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"guardian/internal/types"
)

// Defaults applied when Config fields are zero.
const (
	DefaultWorkers     = 8
	DefaultMaxDuration = 5 * time.Minute
	DefaultGuardTTL    = 15 * time.Minute

	// writeTimeout bounds a single warning write or publish. Writes run
	// detached from the run deadline so a timeout never cuts one in half.
	writeTimeout = 10 * time.Second

	// guardMargin covers guard release and job bookkeeping after the run
	// budget ends.
	guardMargin = time.Minute
)

// --- Collaborator Interfaces ---

// RuleSource supplies the active rules. Satisfied by rules.Service and
// db.RuleRepository.
type RuleSource interface {
	ListActive(ctx context.Context) ([]*types.WarningRule, error)
}

// HistorySource is the read-only history accessor. Satisfied by
// db.HistoryRepository.
type HistorySource interface {
	ListCandidateUsers(ctx context.Context, scope types.CandidateScope) ([]string, error)
	GetUserHistory(ctx context.Context, userID string, since time.Time) (*types.UserHistory, error)
}

// WarningWriter performs the dedup-guarded insert. Satisfied by
// db.WarningRepository.
type WarningWriter interface {
	UpsertIfNotOpen(ctx context.Context, userID, ruleID string, severity types.Severity, details string) (types.UpsertResult, error)
}

// RunHistory records runs in job_history. Satisfied by db.JobHistoryRepository.
type RunHistory interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, jobErr error) error
}

// Deps are the orchestrator's collaborators. Publisher, Metrics and Runs are
// optional.
type Deps struct {
	Rules      RuleSource
	History    HistorySource
	Warnings   WarningWriter
	Guard      RunGuard
	Publisher  types.NotifyAdminPublisher
	Metrics    types.RunMetrics
	Runs       RunHistory
	Evaluators Registry
	Clock      types.Clock
	Logger     *slog.Logger
}

// Config tunes a detection run.
type Config struct {
	Workers     int
	MaxDuration time.Duration
	GuardTTL    time.Duration
	// HistoryDays is how far back user history is loaded.
	HistoryDays int
}

// RunOptions are per-invocation overrides.
type RunOptions struct {
	// MaxDuration overrides Config.MaxDuration when positive.
	MaxDuration time.Duration
	Trigger     types.RunTrigger
	// ReferenceTime evaluates history as of this instant instead of the
	// clock's now. Used to replay a missed scheduled run.
	ReferenceTime time.Time
}

// Orchestrator drives detection runs.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// NewOrchestrator creates an Orchestrator. Zero config fields take defaults;
// a nil guard becomes a process-wide MemoryGuard.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.Guard == nil {
		deps.Guard = NewMemoryGuard(deps.Clock)
	}
	if deps.Evaluators == nil {
		deps.Evaluators = DefaultEvaluators()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.GuardTTL <= 0 {
		cfg.GuardTTL = DefaultGuardTTL
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = types.MaxLookbackDays
	}
	return &Orchestrator{deps: deps, cfg: cfg}
}

// RunDetection evaluates every active rule against its candidate users.
//
// It fails with conflict_detection_in_progress when another run holds the
// guard, and with internal_database_error when rules or candidates cannot be
// listed. Per-user failures never fail the run; those users are reported in
// SkippedUsers. When the duration budget expires the run stops dispatching
// and returns partial counts with TimedOut set.
func (o *Orchestrator) RunDetection(ctx context.Context, opts RunOptions) (*types.RunSummary, error) {
	log := o.deps.Logger
	runID := uuid.NewString()

	maxDuration := o.cfg.MaxDuration
	if opts.MaxDuration > 0 {
		maxDuration = opts.MaxDuration
	}

	acquired, err := o.deps.Guard.TryAcquire(ctx, runID, o.guardTTL(maxDuration))
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, types.NewAppError(types.ErrCodeConflictDetectionBusy, "a detection run is already in progress", nil)
	}
	defer func() {
		if err := o.deps.Guard.Release(context.WithoutCancel(ctx), runID); err != nil {
			log.Error("failed to release detection guard", "run_id", runID, "error", err)
		}
	}()

	trigger := opts.Trigger
	if trigger == "" {
		trigger = types.TriggerManual
	}

	now := o.deps.Clock.Now()
	state := &runState{
		summary: &types.RunSummary{
			RunID:        runID,
			Trigger:      trigger,
			SkippedUsers: []string{},
			StartedAt:    now,
		},
		evaluated: make(map[string]struct{}),
		skipped:   make(map[string]struct{}),
	}

	jobID := o.startJob(ctx)
	log.Info("detection run started", "run_id", runID, "trigger", trigger, "max_duration", maxDuration)

	runCtx, cancel := context.WithTimeout(ctx, maxDuration)
	defer cancel()

	evalAt := now
	if !opts.ReferenceTime.IsZero() {
		evalAt = opts.ReferenceTime
	}
	runErr := o.run(runCtx, evalAt, state)

	summary := state.finish(o.deps.Clock.Now())
	if runErr != nil {
		o.finishJob(ctx, jobID, types.JobStatusFailed, summary.WarningsCreated, runErr)
		log.Error("detection run failed", "run_id", runID, "error", runErr)
		return nil, runErr
	}

	var jobErr error
	if len(summary.SkippedUsers) > 0 {
		jobErr = fmt.Errorf("%d users skipped", len(summary.SkippedUsers))
	}
	o.finishJob(ctx, jobID, summary.Status(), summary.WarningsCreated, jobErr)
	if o.deps.Metrics != nil {
		o.deps.Metrics.RecordRun(context.WithoutCancel(ctx), summary)
	}

	log.Info("detection run finished",
		"run_id", runID,
		"status", summary.Status(),
		"rules_evaluated", summary.RulesEvaluated,
		"evaluated_users", summary.EvaluatedUsers,
		"warnings_created", summary.WarningsCreated,
		"skipped_users", len(summary.SkippedUsers),
		"notifications_sent", summary.NotificationsSent,
		"timed_out", summary.TimedOut,
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)
	return summary, nil
}

// guardTTL is the lease taken for a run with the given budget. The lease
// must outlive the run, including the last detached write, or a second run
// could claim the guard while this one is still writing.
func (o *Orchestrator) guardTTL(maxDuration time.Duration) time.Duration {
	return max(o.cfg.GuardTTL, maxDuration+writeTimeout+guardMargin)
}

// run iterates rules in creation order. Only storage failures that prevent a
// rule from running at all are returned.
func (o *Orchestrator) run(ctx context.Context, now time.Time, state *runState) error {
	// Read once; edits made during the run apply to the next one.
	rules, err := o.deps.Rules.ListActive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			state.timedOut()
			return nil
		}
		return asSystemError(err, "failed to list active rules")
	}

	cache := newHistoryCache(o.deps.History, now.AddDate(0, 0, -(o.cfg.HistoryDays + 1)))

	for _, rule := range rules {
		if ctx.Err() != nil {
			state.timedOut()
			return nil
		}

		evaluator, ok := o.deps.Evaluators.Lookup(rule.Type)
		if !ok {
			o.deps.Logger.Warn("no evaluator for rule type, skipping rule", "rule_id", rule.ID, "type", rule.Type)
			continue
		}

		candidates, err := o.deps.History.ListCandidateUsers(ctx, rule.Type.CandidateScope())
		if err != nil {
			if ctx.Err() != nil {
				state.timedOut()
				return nil
			}
			return asSystemError(err, "failed to list candidate users")
		}
		state.ruleEvaluated()

		g := new(errgroup.Group)
		g.SetLimit(o.cfg.Workers)
		for _, userID := range candidates {
			if ctx.Err() != nil {
				state.timedOut()
				break
			}
			userID := userID
			g.Go(func() error {
				o.evaluateUser(ctx, now, rule, evaluator, userID, cache, state)
				// Failures are isolated per user and never cancel siblings.
				return nil
			})
		}
		_ = g.Wait()
	}
	return nil
}

func (o *Orchestrator) evaluateUser(
	ctx context.Context,
	now time.Time,
	rule *types.WarningRule,
	evaluator Evaluator,
	userID string,
	cache *historyCache,
	state *runState,
) {
	log := o.deps.Logger

	history, err := cache.get(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			state.timedOut()
			return
		}
		log.Warn("skipping user: history unavailable", "user_id", userID, "rule_id", rule.ID, "error", err)
		state.skip(userID)
		return
	}

	params := rule.Params()
	snap := BuildSnapshot(history, now, params.LookbackDays, o.cfg.HistoryDays)
	outcome := evaluator.Evaluate(snap, params)
	state.evaluatedUser(userID)
	if !outcome.Violated {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	res, err := o.deps.Warnings.UpsertIfNotOpen(writeCtx, userID, rule.ID, rule.Severity, outcome.Details)
	if err != nil {
		log.Warn("skipping user: warning write failed", "user_id", userID, "rule_id", rule.ID, "error", err)
		state.skip(userID)
		return
	}
	if !res.Created {
		return
	}
	state.warningCreated()

	if !rule.NotifyAdmin || o.deps.Publisher == nil {
		return
	}
	event := types.NotifyAdminEvent{
		WarningID:  res.Warning.ID,
		Severity:   res.Warning.Severity,
		UserID:     userID,
		RuleType:   rule.Type,
		RuleID:     rule.ID,
		OccurredAt: res.Warning.CreatedAt,
	}
	if err := o.deps.Publisher.PublishNotifyAdmin(writeCtx, event); err != nil {
		// The warning stands; delivery is the collaborator's concern.
		log.Error("failed to publish notifyAdmin event", "warning_id", event.WarningID, "error", err)
		return
	}
	state.notificationSent()
}

func (o *Orchestrator) startJob(ctx context.Context) int64 {
	if o.deps.Runs == nil {
		return 0
	}
	id, err := o.deps.Runs.Start(ctx, types.JobTypeDetection)
	if err != nil {
		o.deps.Logger.Warn("failed to record detection run start", "error", err)
		return 0
	}
	return id
}

func (o *Orchestrator) finishJob(ctx context.Context, id int64, status string, items int, jobErr error) {
	if o.deps.Runs == nil || id == 0 {
		return
	}
	if err := o.deps.Runs.Finish(context.WithoutCancel(ctx), id, status, items, jobErr); err != nil {
		o.deps.Logger.Warn("failed to record detection run finish", "job_id", id, "error", err)
	}
}

func asSystemError(err error, msg string) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(types.ErrCodeInternalDB, msg, err)
}

// --- Run state ---

// runState accumulates counters from concurrent workers.
type runState struct {
	mu        sync.Mutex
	summary   *types.RunSummary
	evaluated map[string]struct{}
	skipped   map[string]struct{}
}

func (s *runState) ruleEvaluated() {
	s.mu.Lock()
	s.summary.RulesEvaluated++
	s.mu.Unlock()
}

func (s *runState) evaluatedUser(userID string) {
	s.mu.Lock()
	s.evaluated[userID] = struct{}{}
	s.mu.Unlock()
}

func (s *runState) skip(userID string) {
	s.mu.Lock()
	s.skipped[userID] = struct{}{}
	s.mu.Unlock()
}

func (s *runState) warningCreated() {
	s.mu.Lock()
	s.summary.WarningsCreated++
	s.mu.Unlock()
}

func (s *runState) notificationSent() {
	s.mu.Lock()
	s.summary.NotificationsSent++
	s.mu.Unlock()
}

func (s *runState) timedOut() {
	s.mu.Lock()
	s.summary.TimedOut = true
	s.mu.Unlock()
}

func (s *runState) finish(at time.Time) *types.RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary.EvaluatedUsers = len(s.evaluated)
	for id := range s.skipped {
		s.summary.SkippedUsers = append(s.summary.SkippedUsers, id)
	}
	sort.Strings(s.summary.SkippedUsers)
	s.summary.FinishedAt = at
	return s.summary
}

// --- History cache ---

// historyCache loads each user's history at most once per run. A failed load
// is remembered so the user is not retried for later rules.
type historyCache struct {
	source  HistorySource
	since   time.Time
	mu      sync.Mutex
	entries map[string]*historyEntry
}

type historyEntry struct {
	once    sync.Once
	history *types.UserHistory
	err     error
}

func newHistoryCache(source HistorySource, since time.Time) *historyCache {
	y, m, d := since.Date()
	return &historyCache{
		source:  source,
		since:   time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		entries: make(map[string]*historyEntry),
	}
}

func (c *historyCache) get(ctx context.Context, userID string) (*types.UserHistory, error) {
	c.mu.Lock()
	e, ok := c.entries[userID]
	if !ok {
		e = &historyEntry{}
		c.entries[userID] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.history, e.err = c.source.GetUserHistory(ctx, userID, c.since)
	})
	return e.history, e.err
}
