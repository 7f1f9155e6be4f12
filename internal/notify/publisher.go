// Package notify delivers notifyAdmin events to the downstream alerting
// collaborator. The detection engine only emits events; email, SMS and push
// fan-out happen elsewhere.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"guardian/internal/types"
)

// EventType is written alongside every published payload so consumers can
// route without decoding the body.
const EventType = "early_warning.notify_admin"

func encodeEvent(event types.NotifyAdminEvent) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to marshal event %s: %w", event.WarningID, err)
	}
	return body, nil
}

// LogPublisher writes events to the structured log. Used in local
// development and when no queue is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// PublishNotifyAdmin implements types.NotifyAdminPublisher.
func (p *LogPublisher) PublishNotifyAdmin(ctx context.Context, event types.NotifyAdminEvent) error {
	p.logger.InfoContext(ctx, "notifyAdmin event",
		"event_type", EventType,
		"warning_id", event.WarningID,
		"severity", event.Severity,
		"user_id", event.UserID,
		"rule_type", event.RuleType,
		"rule_id", event.RuleID,
	)
	return nil
}
