package detection

import (
	"context"
	"time"

	"guardian/internal/types"
)

// LockStore is the job_locks contract. Satisfied by db.JobLockRepository.
type LockStore interface {
	Acquire(ctx context.Context, lockID string, workerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, lockID string, workerID string) (bool, error)
}

// PostgresGuard is a RunGuard shared by every instance that uses the same
// database. The claim is a job_locks row keyed by the detection job type.
type PostgresGuard struct {
	locks  LockStore
	lockID string
}

// NewPostgresGuard creates a guard over locks.
func NewPostgresGuard(locks LockStore) *PostgresGuard {
	return &PostgresGuard{locks: locks, lockID: types.JobTypeDetection}
}

// TryAcquire implements RunGuard.
func (g *PostgresGuard) TryAcquire(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	return g.locks.Acquire(ctx, g.lockID, holder, ttl)
}

// Release implements RunGuard.
func (g *PostgresGuard) Release(ctx context.Context, holder string) error {
	_, err := g.locks.Release(ctx, g.lockID, holder)
	return err
}
