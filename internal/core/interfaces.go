package core

import (
	"context"
	"time"

	"guardian/internal/types"
)

// Authenticator resolves a bearer token to the Actor making the request.
// Implementations return auth_token_invalid for any token they reject.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string, actorHint string) (*types.Actor, error)
}

// MetricsCollector records API request telemetry. route is the chi route
// pattern, not the raw path, to keep label cardinality bounded.
type MetricsCollector interface {
	RecordRequest(method, route, status string, duration time.Duration)
}

// HealthProbe checks one dependency the service cannot run without.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}
