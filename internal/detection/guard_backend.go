package detection

import (
	"context"
	"fmt"

	"guardian/internal/config"
	"guardian/internal/types"
)

// Guard backend names accepted by GUARD_BACKEND.
const (
	GuardBackendMemory   = "memory"
	GuardBackendPostgres = "postgres"
	GuardBackendRedis    = "redis"
)

// NewGuard builds the RunGuard selected by backend. locks is used by the
// postgres backend, redisCfg by the redis backend. The returned close func is
// never nil.
func NewGuard(ctx context.Context, backend string, locks LockStore, redisCfg config.RedisConfig, clock types.Clock) (RunGuard, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case "", GuardBackendMemory:
		return NewMemoryGuard(clock), noop, nil

	case GuardBackendPostgres:
		if locks == nil {
			return nil, noop, fmt.Errorf("guard backend %q requires a lock store", backend)
		}
		return NewPostgresGuard(locks), noop, nil

	case GuardBackendRedis:
		if redisCfg.Addr == "" {
			return nil, noop, fmt.Errorf("guard backend %q requires REDIS_ADDR", backend)
		}
		client, err := NewRedisClient(ctx, redisCfg.Addr, redisCfg.Password.Unmask(), redisCfg.DB)
		if err != nil {
			return nil, noop, err
		}
		return NewRedisGuard(client), client.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown guard backend %q", backend)
	}
}
