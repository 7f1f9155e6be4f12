package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"guardian/internal/types"
)

func utcNow() time.Time { return time.Now().UTC() }

// JobLockRepository implements detection.LockStore over the job_locks table.
// A row is a lease: it belongs to worker_id until released or until
// expires_at, after which any worker may take it over.
type JobLockRepository struct {
	db  DBTX
	now func() time.Time
}

func NewJobLockRepository(db DBTX) *JobLockRepository {
	return &JobLockRepository{db: db, now: utcNow}
}

// Acquire takes the lease on lockID for ttl. It reports false, without error,
// while another worker holds an unexpired lease.
func (r *JobLockRepository) Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error) {
	now := r.now()
	// Timestamps are bound from Go; a Go duration string is not a valid
	// PostgreSQL interval.
	tag, err := r.db.Exec(ctx, `
		INSERT INTO job_locks AS l (id, worker_id, locked_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET worker_id = EXCLUDED.worker_id, locked_at = EXCLUDED.locked_at, expires_at = EXCLUDED.expires_at
		WHERE l.expires_at <= $3`,
		lockID, workerID, now, now.Add(ttl),
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to acquire job lock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release drops the lease only if workerID still owns it, so a holder whose
// lease expired cannot free its successor's.
func (r *JobLockRepository) Release(ctx context.Context, lockID, workerID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM job_locks WHERE id = $1 AND worker_id = $2`, lockID, workerID)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to release job lock", err)
	}
	return tag.RowsAffected() == 1, nil
}

// JobHistoryRepository records detection runs in job_history. It backs the
// orchestrator's run bookkeeping and GET /v1/admin/detection/runs.
type JobHistoryRepository struct {
	db  DBTX
	now func() time.Time
}

func NewJobHistoryRepository(db DBTX) *JobHistoryRepository {
	return &JobHistoryRepository{db: db, now: utcNow}
}

const jobRunColumns = `id, job_type, status, started_at, finished_at, items_count, error`

func scanJobRun(row pgx.Row) (types.JobRun, error) {
	var run types.JobRun
	err := row.Scan(&run.ID, &run.JobType, &run.Status, &run.StartedAt, &run.FinishedAt, &run.ItemsCount, &run.Error)
	return run, err
}

// Start opens a run in the running state and returns its ID.
func (r *JobHistoryRepository) Start(ctx context.Context, jobType string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO job_history (job_type, status, started_at) VALUES ($1, $2, $3) RETURNING id`,
		jobType, types.JobStatusRunning, r.now(),
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start job history entry", err)
	}
	return id, nil
}

// Finish closes run id with its final status and item count. jobErr, when
// set, is stored as the run's error text.
func (r *JobHistoryRepository) Finish(ctx context.Context, id int64, status string, items int, jobErr error) error {
	var errText *string
	if jobErr != nil {
		msg := jobErr.Error()
		errText = &msg
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE job_history
		SET status = $2, items_count = $3, error = $4, finished_at = $5
		WHERE id = $1`,
		id, status, items, errText, r.now(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish job history entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "job history entry not found", nil)
	}
	return nil
}

// ListRecent returns up to limit runs of jobType, newest first.
func (r *JobHistoryRepository) ListRecent(ctx context.Context, jobType string, limit int) ([]types.JobRun, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+jobRunColumns+` FROM job_history
		WHERE job_type = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2`,
		jobType, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list job history", err)
	}
	defer rows.Close()

	runs := []types.JobRun{}
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan job history entry", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list job history", err)
	}
	return runs, nil
}
