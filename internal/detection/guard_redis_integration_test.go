//go:build integration

package detection

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/config"
	"guardian/internal/testinfra"
)

func setupRedisGuards(t *testing.T, n int) []RunGuard {
	t.Helper()
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	rc, err := testinfra.NewRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { testinfra.CleanupContainer(t, ctx, rc) })

	guards := make([]RunGuard, n)
	for i := range guards {
		g, closeFn, err := NewGuard(ctx, GuardBackendRedis, nil, config.RedisConfig{Addr: rc.Addr}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = closeFn() })
		guards[i] = g
	}
	return guards
}

// Each guard has its own client, as separate service instances would.
func TestIntegration_RedisGuardSingleHolderAcrossInstances(t *testing.T) {
	guards := setupRedisGuards(t, 8)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners []string
	for i, g := range guards {
		wg.Add(1)
		go func(holder string, g RunGuard) {
			defer wg.Done()
			ok, err := g.TryAcquire(ctx, holder, time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners = append(winners, holder)
				mu.Unlock()
			}
		}(fmt.Sprintf("instance-%d", i), g)
	}
	wg.Wait()
	require.Len(t, winners, 1)

	// Only the holder's release frees the guard.
	for i, g := range guards {
		holder := fmt.Sprintf("instance-%d", i)
		if holder != winners[0] {
			require.NoError(t, g.Release(ctx, holder))
		}
	}
	ok, err := guards[0].TryAcquire(ctx, "late", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	var idx int
	_, err = fmt.Sscanf(winners[0], "instance-%d", &idx)
	require.NoError(t, err)
	require.NoError(t, guards[idx].Release(ctx, winners[0]))

	ok, err = guards[0].TryAcquire(ctx, "late", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIntegration_RedisGuardTTLExpiry(t *testing.T) {
	guards := setupRedisGuards(t, 2)
	ctx := context.Background()

	ok, err := guards[0].TryAcquire(ctx, "crashed", 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		ok, err := guards[1].TryAcquire(ctx, "next", time.Minute)
		return err == nil && ok
	}, 5*time.Second, 50*time.Millisecond, "expired claim must be reclaimable")
}
