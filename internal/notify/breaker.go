package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"guardian/internal/types"
)

// BreakerPublisher wraps a publisher with a circuit breaker. While the
// breaker is open, publishes fail immediately instead of waiting on a broken
// queue once per violating user.
type BreakerPublisher struct {
	next    types.NotifyAdminPublisher
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerPublisher wraps next with a breaker that trips after more than
// five consecutive failures and probes again after 30s.
func NewBreakerPublisher(name string, next types.NotifyAdminPublisher) *BreakerPublisher {
	return NewBreakerPublisherWithSettings(next, gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
}

// NewBreakerPublisherWithSettings wraps next with a caller-configured breaker.
func NewBreakerPublisherWithSettings(next types.NotifyAdminPublisher, st gobreaker.Settings) *BreakerPublisher {
	return &BreakerPublisher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[struct{}](st),
	}
}

// PublishNotifyAdmin implements types.NotifyAdminPublisher.
func (p *BreakerPublisher) PublishNotifyAdmin(ctx context.Context, event types.NotifyAdminEvent) error {
	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.next.PublishNotifyAdmin(ctx, event)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "admin alert publishing is temporarily suspended", err)
	}
	return err
}

// State reports the breaker state.
func (p *BreakerPublisher) State() gobreaker.State {
	return p.breaker.State()
}
