package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"guardian/internal/types"
)

// WarningRepository provides data access for the early_warnings table. The
// partial unique index uq_early_warnings_open guarantees at most one
// unacknowledged row per (user_id, rule_id); this repository relies on it
// instead of any in-process locking.
type WarningRepository struct {
	db DBTX
}

// NewWarningRepository creates a new WarningRepository backed by the given
// database connection (pool or transaction).
func NewWarningRepository(db DBTX) *WarningRepository {
	return &WarningRepository{db: db}
}

// warningColumns is selected from an early_warnings alias "w" joined to
// early_warning_rules "r". Order must match scanWarning.
const warningColumns = `w.id, w.user_id, w.rule_id, r.name, r.type, w.severity, w.details,
	w.is_acknowledged, w.acknowledged_at, w.acknowledged_by, w.notes, w.created_at`

func scanWarning(row pgx.Row) (*types.EarlyWarning, error) {
	var w types.EarlyWarning
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.RuleID,
		&w.RuleName,
		&w.RuleType,
		&w.Severity,
		&w.Details,
		&w.IsAcknowledged,
		&w.AcknowledgedAt,
		&w.AcknowledgedBy,
		&w.Notes,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// upsertAttempts bounds the insert/read loop in UpsertIfNotOpen. A second
// attempt is only needed when the conflicting open row is acknowledged
// between the insert and the read.
const upsertAttempts = 2

// UpsertIfNotOpen creates an open warning for (userID, ruleID) unless one
// already exists. The conditional insert targets the partial unique index, so
// concurrent callers for the same pair create exactly one row.
func (r *WarningRepository) UpsertIfNotOpen(ctx context.Context, userID, ruleID string, severity types.Severity, details string) (types.UpsertResult, error) {
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		created, err := scanWarning(r.db.QueryRow(ctx,
			`WITH w AS (
			   INSERT INTO early_warnings (id, user_id, rule_id, severity, details)
			   VALUES ($1, $2, $3, $4, $5)
			   ON CONFLICT (user_id, rule_id) WHERE is_acknowledged = false DO NOTHING
			   RETURNING *
			 )
			 SELECT `+warningColumns+`
			 FROM w JOIN early_warning_rules r ON r.id = w.rule_id`,
			uuid.NewString(),
			userID,
			ruleID,
			string(severity),
			details,
		))
		if err == nil {
			return types.UpsertResult{Created: true, Warning: created}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return types.UpsertResult{}, types.NewAppError(types.ErrCodeInternalDB, "failed to insert warning", err)
		}

		open, err := scanWarning(r.db.QueryRow(ctx,
			`SELECT `+warningColumns+`
			 FROM early_warnings w JOIN early_warning_rules r ON r.id = w.rule_id
			 WHERE w.user_id = $1 AND w.rule_id = $2 AND w.is_acknowledged = false`,
			userID,
			ruleID,
		))
		if err == nil {
			return types.UpsertResult{Created: false, Warning: open}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return types.UpsertResult{}, types.NewAppError(types.ErrCodeInternalDB, "failed to read open warning", err)
		}
	}
	return types.UpsertResult{}, types.NewAppError(types.ErrCodeInternalDB,
		fmt.Sprintf("open warning for user %s and rule %s changed during upsert", userID, ruleID), nil)
}

// Acknowledge marks an open warning as acknowledged. The update is
// conditional on is_acknowledged = false so concurrent acknowledges apply
// once; the loser receives conflict_already_acknowledged.
func (r *WarningRepository) Acknowledge(ctx context.Context, id, actorID string, notes *string) (*types.EarlyWarning, error) {
	warning, err := scanWarning(r.db.QueryRow(ctx,
		`WITH w AS (
		   UPDATE early_warnings
		   SET is_acknowledged = true, acknowledged_at = NOW(), acknowledged_by = $2, notes = $3
		   WHERE id = $1 AND is_acknowledged = false
		   RETURNING *
		 )
		 SELECT `+warningColumns+`
		 FROM w JOIN early_warning_rules r ON r.id = w.rule_id`,
		id,
		actorID,
		notes,
	))
	if err == nil {
		return warning, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to acknowledge warning", err)
	}

	var acknowledged bool
	err = r.db.QueryRow(ctx,
		`SELECT is_acknowledged FROM early_warnings WHERE id = $1`,
		id,
	).Scan(&acknowledged)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundWarning, "warning not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read warning", err)
	}
	return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictAcknowledged,
		"warning is already acknowledged", nil, map[string]any{"warning_id": id})
}

// List returns one page of warnings matching filter, newest first, plus the
// total number of matching rows.
func (r *WarningRepository) List(ctx context.Context, filter types.WarningFilter) ([]*types.EarlyWarning, int, error) {
	filter.Adjust()

	var conditions []string
	var args []any
	argIdx := 1

	if filter.Severity != nil {
		conditions = append(conditions, fmt.Sprintf("w.severity = $%d", argIdx))
		args = append(args, string(*filter.Severity))
		argIdx++
	}
	if filter.Acknowledged != nil {
		conditions = append(conditions, fmt.Sprintf("w.is_acknowledged = $%d", argIdx))
		args = append(args, *filter.Acknowledged)
		argIdx++
	}
	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("w.user_id = $%d", argIdx))
		args = append(args, *filter.UserID)
		argIdx++
	}
	if filter.RuleID != nil {
		conditions = append(conditions, fmt.Sprintf("w.rule_id = $%d", argIdx))
		args = append(args, *filter.RuleID)
		argIdx++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM early_warnings w `+whereClause,
		args...,
	).Scan(&total); err != nil {
		return nil, 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count warnings", err)
	}

	query := fmt.Sprintf(
		`SELECT %s
		 FROM early_warnings w JOIN early_warning_rules r ON r.id = w.rule_id
		 %s
		 ORDER BY w.created_at DESC, w.id
		 LIMIT $%d OFFSET $%d`,
		warningColumns,
		whereClause,
		argIdx,
		argIdx+1,
	)
	args = append(args, filter.PageSize, filter.Offset())

	warnings, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return warnings, total, nil
}

// ListOpen returns every unacknowledged warning.
func (r *WarningRepository) ListOpen(ctx context.Context) ([]*types.EarlyWarning, error) {
	return r.query(ctx,
		`SELECT `+warningColumns+`
		 FROM early_warnings w JOIN early_warning_rules r ON r.id = w.rule_id
		 WHERE w.is_acknowledged = false
		 ORDER BY w.created_at DESC, w.id`,
	)
}

// ListRecent returns the newest n warnings regardless of acknowledgment.
func (r *WarningRepository) ListRecent(ctx context.Context, n int) ([]*types.EarlyWarning, error) {
	return r.query(ctx,
		`SELECT `+warningColumns+`
		 FROM early_warnings w JOIN early_warning_rules r ON r.id = w.rule_id
		 ORDER BY w.created_at DESC, w.id
		 LIMIT $1`,
		n,
	)
}

// CountTotals returns the total and unacknowledged warning counts.
func (r *WarningRepository) CountTotals(ctx context.Context) (types.WarningTotals, error) {
	var t types.WarningTotals
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_acknowledged = false) FROM early_warnings`,
	).Scan(&t.Total, &t.Unacknowledged)
	if err != nil {
		return types.WarningTotals{}, types.NewAppError(types.ErrCodeInternalDB, "failed to count warnings", err)
	}
	return t, nil
}

func (r *WarningRepository) query(ctx context.Context, query string, args ...any) ([]*types.EarlyWarning, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query warnings", err)
	}
	defer rows.Close()

	warnings := make([]*types.EarlyWarning, 0)
	for rows.Next() {
		w, err := scanWarning(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan warning", err)
		}
		warnings = append(warnings, w)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating warnings", err)
	}
	return warnings, nil
}
