package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"guardian/internal/types"
)

// HistoryRepository is the read-only history accessor over the check-in
// product's tables. It never writes.
type HistoryRepository struct {
	db DBTX
}

// NewHistoryRepository creates a new HistoryRepository backed by the given
// database connection (pool or transaction).
func NewHistoryRepository(db DBTX) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListCandidateUsers returns the IDs of monitored users in scope, ordered by ID.
func (r *HistoryRepository) ListCandidateUsers(ctx context.Context, scope types.CandidateScope) ([]string, error) {
	var query string
	switch scope {
	case types.ScopeAllMonitored:
		query = `SELECT u.id FROM users u
		         WHERE u.deleted_at IS NULL AND u.is_monitored
		         ORDER BY u.id`
	case types.ScopeCheckinEnabled:
		query = `SELECT u.id FROM users u
		         JOIN checkin_settings s ON s.user_id = u.id
		         WHERE u.deleted_at IS NULL AND u.is_monitored AND s.enabled
		         ORDER BY u.id`
	default:
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("unknown candidate scope %q", scope), nil)
	}

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list candidate users", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan candidate user", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating candidate users", err)
	}
	return ids, nil
}

// GetUserHistory loads settings, contact count, check-ins and snoozes for a
// user. Dated records before since are not returned. Users without a
// checkin_settings row are reported as disabled.
func (r *HistoryRepository) GetUserHistory(ctx context.Context, userID string, since time.Time) (*types.UserHistory, error) {
	h := &types.UserHistory{UserID: userID}

	err := r.db.QueryRow(ctx,
		`SELECT u.created_at,
		        COALESCE(s.enabled, false),
		        COALESCE(to_char(s.deadline_time, 'HH24:MI'), ''),
		        COALESCE(s.timezone, 'UTC'),
		        (SELECT COUNT(*) FROM emergency_contacts c WHERE c.user_id = u.id)
		 FROM users u
		 LEFT JOIN checkin_settings s ON s.user_id = u.id
		 WHERE u.id = $1 AND u.deleted_at IS NULL`,
		userID,
	).Scan(
		&h.TrackingSince,
		&h.Settings.Enabled,
		&h.Settings.DeadlineTime,
		&h.Settings.Timezone,
		&h.ContactsCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user settings", err)
	}

	checkIns, err := r.db.Query(ctx,
		`SELECT checkin_date, checked_in_at FROM daily_checkins
		 WHERE user_id = $1 AND checkin_date >= $2
		 ORDER BY checkin_date`,
		userID,
		since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query check-ins", err)
	}
	defer checkIns.Close()

	for checkIns.Next() {
		var c types.CheckIn
		if err := checkIns.Scan(&c.Date, &c.CheckedInAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan check-in", err)
		}
		h.CheckIns = append(h.CheckIns, c)
	}
	if err := checkIns.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating check-ins", err)
	}

	snoozes, err := r.db.Query(ctx,
		`SELECT snooze_date FROM snooze_events
		 WHERE user_id = $1 AND snooze_date >= $2
		 ORDER BY snooze_date`,
		userID,
		since,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query snooze events", err)
	}
	defer snoozes.Close()

	for snoozes.Next() {
		var s types.SnoozeEvent
		if err := snoozes.Scan(&s.Date); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan snooze event", err)
		}
		h.SnoozeEvents = append(h.SnoozeEvents, s)
	}
	if err := snoozes.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating snooze events", err)
	}

	return h, nil
}
