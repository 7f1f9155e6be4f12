package detection

import (
	"context"
	"sync"
	"time"

	"guardian/internal/types"
)

// RunGuard admits at most one detection run at a time. A holder that never
// releases loses the guard once ttl elapses.
type RunGuard interface {
	// TryAcquire takes the guard for holder. It returns false without
	// blocking when another holder has an unexpired claim.
	TryAcquire(ctx context.Context, holder string, ttl time.Duration) (bool, error)
	// Release frees the guard if holder still owns it.
	Release(ctx context.Context, holder string) error
}

// GuardState is the state of a MemoryGuard.
type GuardState int

const (
	GuardIdle GuardState = iota
	GuardRunning
)

func (s GuardState) String() string {
	if s == GuardRunning {
		return "running"
	}
	return "idle"
}

// MemoryGuard is a process-wide RunGuard implemented as an {Idle, Running}
// state machine. Running expires back to Idle after the acquirer's ttl.
type MemoryGuard struct {
	mu        sync.Mutex
	clock     types.Clock
	state     GuardState
	holder    string
	expiresAt time.Time
}

// NewMemoryGuard returns an idle guard. A nil clock uses the real clock.
func NewMemoryGuard(clock types.Clock) *MemoryGuard {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &MemoryGuard{clock: clock}
}

// TryAcquire implements RunGuard.
func (g *MemoryGuard) TryAcquire(_ context.Context, holder string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if g.state == GuardRunning && now.Before(g.expiresAt) {
		return false, nil
	}

	// Idle, or Running with an expired claim.
	g.state = GuardRunning
	g.holder = holder
	g.expiresAt = now.Add(ttl)
	return true, nil
}

// Release implements RunGuard. Releasing after the claim expired and was
// taken by another holder leaves the new claim in place.
func (g *MemoryGuard) Release(_ context.Context, holder string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == GuardRunning && g.holder == holder {
		g.state = GuardIdle
		g.holder = ""
		g.expiresAt = time.Time{}
	}
	return nil
}

// State reports the current state, treating an expired claim as idle.
func (g *MemoryGuard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == GuardRunning && !g.clock.Now().Before(g.expiresAt) {
		return GuardIdle
	}
	return g.state
}
