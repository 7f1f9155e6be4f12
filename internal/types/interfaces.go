package types

import (
	"context"
	"time"
)

// Clock supplies "now" to the orchestrator and the run guards, so tests can
// pin the evaluation instant.
type Clock interface {
	Now() time.Time
}

// RealClock is the wall clock, in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// NotifyAdminPublisher hands notifyAdmin events to the delivery collaborator.
type NotifyAdminPublisher interface {
	PublishNotifyAdmin(ctx context.Context, event NotifyAdminEvent) error
}

// RunMetrics receives detection run telemetry.
type RunMetrics interface {
	RecordRun(ctx context.Context, summary *RunSummary)
}
