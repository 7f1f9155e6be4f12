package detection

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"guardian/internal/types"
)

// RedisGuardKey is the key holding the current run's holder ID.
const RedisGuardKey = "guardian:lock:" + types.JobTypeDetection

// releaseScript deletes the key only if it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisClient is the subset of go-redis used by RedisGuard.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// RedisGuard is a RunGuard backed by a single Redis key with a PX expiry.
type RedisGuard struct {
	client RedisClient
	key    string
}

// NewRedisGuard creates a guard on client.
func NewRedisGuard(client RedisClient) *RedisGuard {
	return &RedisGuard{client: client, key: RedisGuardKey}
}

// TryAcquire implements RunGuard with SET key holder NX PX ttl.
func (g *RedisGuard) TryAcquire(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key, holder, ttl).Result()
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to acquire redis run guard", err)
	}
	return ok, nil
}

// Release implements RunGuard. Only the current holder's claim is deleted.
func (g *RedisGuard) Release(ctx context.Context, holder string) error {
	if err := releaseScript.Run(ctx, g.client, []string{g.key}, holder).Err(); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to release redis run guard", err)
	}
	return nil
}

// NewRedisClient builds a go-redis client and verifies it with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to connect to redis", err)
	}
	return client, nil
}
