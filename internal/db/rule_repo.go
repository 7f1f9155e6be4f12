package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"guardian/internal/types"
)

// RuleRepository provides data access for the early_warning_rules table.
type RuleRepository struct {
	db DBTX
}

// NewRuleRepository creates a new RuleRepository backed by the given
// database connection (pool or transaction).
func NewRuleRepository(db DBTX) *RuleRepository {
	return &RuleRepository{db: db}
}

// ruleColumns defines the column order shared by every rule query and scanRule.
const ruleColumns = `id, name, description, type, severity, threshold, lookback_days,
	is_active, notify_admin, created_at, updated_at`

func scanRule(row pgx.Row) (*types.WarningRule, error) {
	var (
		r           types.WarningRule
		description *string
	)
	err := row.Scan(
		&r.ID,
		&r.Name,
		&description,
		&r.Type,
		&r.Severity,
		&r.Threshold,
		&r.LookbackDays,
		&r.IsActive,
		&r.NotifyAdmin,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if description != nil {
		r.Description = *description
	}
	return &r, nil
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a rule. The caller assigns ID; timestamps come from the
// database and are written back onto rule.
func (r *RuleRepository) Create(ctx context.Context, rule *types.WarningRule) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO early_warning_rules
		 (id, name, description, type, severity, threshold, lookback_days, is_active, notify_admin)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at, updated_at`,
		rule.ID,
		rule.Name,
		nilIfEmpty(rule.Description),
		string(rule.Type),
		string(rule.Severity),
		rule.Threshold,
		rule.LookbackDays,
		rule.IsActive,
		rule.NotifyAdmin,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create rule", err)
	}
	return nil
}

// GetByID returns a single rule or not_found_rule.
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*types.WarningRule, error) {
	rule, err := scanRule(r.db.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM early_warning_rules WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRule, "rule not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get rule", err)
	}
	return rule, nil
}

// List returns every rule in creation order.
func (r *RuleRepository) List(ctx context.Context) ([]*types.WarningRule, error) {
	return r.list(ctx, `SELECT `+ruleColumns+` FROM early_warning_rules ORDER BY created_at, id`)
}

// ListActive returns active rules in creation order. The orchestrator reads
// this once per run.
func (r *RuleRepository) ListActive(ctx context.Context) ([]*types.WarningRule, error) {
	return r.list(ctx, `SELECT `+ruleColumns+` FROM early_warning_rules WHERE is_active ORDER BY created_at, id`)
}

func (r *RuleRepository) list(ctx context.Context, query string) ([]*types.WarningRule, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list rules", err)
	}
	defer rows.Close()

	rules := make([]*types.WarningRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan rule", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating rules", err)
	}
	return rules, nil
}

// Update persists the mutable fields of rule. type is never written.
func (r *RuleRepository) Update(ctx context.Context, rule *types.WarningRule) error {
	err := r.db.QueryRow(ctx,
		`UPDATE early_warning_rules
		 SET name = $2, description = $3, severity = $4, threshold = $5,
		     lookback_days = $6, is_active = $7, notify_admin = $8, updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		rule.ID,
		rule.Name,
		nilIfEmpty(rule.Description),
		string(rule.Severity),
		rule.Threshold,
		rule.LookbackDays,
		rule.IsActive,
		rule.NotifyAdmin,
	).Scan(&rule.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundRule, "rule not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update rule", err)
	}
	return nil
}

// Delete removes a rule. Its warnings are removed by ON DELETE CASCADE.
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM early_warning_rules WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete rule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRule, "rule not found", nil)
	}
	return nil
}
