// Package rules is the rule registry: admin-managed warning rule templates.
// Every write is validated twice, once against the request struct tags and
// once against the per-type parameter rules in types.ValidateRuleParams, so
// a rule that reaches the store is always evaluable.
package rules

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"guardian/internal/types"
)

// Repository is the persistence contract for rules. Satisfied by
// db.RuleRepository.
type Repository interface {
	Create(ctx context.Context, rule *types.WarningRule) error
	GetByID(ctx context.Context, id string) (*types.WarningRule, error)
	List(ctx context.Context) ([]*types.WarningRule, error)
	ListActive(ctx context.Context) ([]*types.WarningRule, error)
	Update(ctx context.Context, rule *types.WarningRule) error
	Delete(ctx context.Context, id string) error
}

// StructValidator validates request struct tags. Satisfied by core.Validator.
type StructValidator interface {
	ValidateStruct(s any) error
}

// CreateRuleRequest is the body of POST /v1/admin/rules.
type CreateRuleRequest struct {
	Name         string         `json:"name" validate:"required,max=200"`
	Description  string         `json:"description,omitempty" validate:"max=2000"`
	Type         types.RuleType `json:"type" validate:"required"`
	Severity     types.Severity `json:"severity" validate:"required,severity"`
	Threshold    int            `json:"threshold"`
	LookbackDays *int           `json:"lookback_days,omitempty"`
	IsActive     *bool          `json:"is_active,omitempty"`
	NotifyAdmin  bool           `json:"notify_admin"`
}

// UpdateRuleRequest is the body of PATCH /v1/admin/rules/{id}. Nil fields
// are left unchanged. Type is decoded only so it can be rejected.
type UpdateRuleRequest struct {
	Name         *string         `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description  *string         `json:"description,omitempty" validate:"omitempty,max=2000"`
	Type         *types.RuleType `json:"type,omitempty"`
	Severity     *types.Severity `json:"severity,omitempty" validate:"omitempty,severity"`
	Threshold    *int            `json:"threshold,omitempty"`
	LookbackDays *int            `json:"lookback_days,omitempty"`
	IsActive     *bool           `json:"is_active,omitempty"`
	NotifyAdmin  *bool           `json:"notify_admin,omitempty"`
}

// Service implements rule registry operations.
type Service struct {
	repo      Repository
	validator StructValidator
	logger    *slog.Logger
}

// NewService creates a rule registry. validator may be nil, in which case
// only the per-type parameter rules are enforced.
func NewService(repo Repository, validator StructValidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validator: validator, logger: logger}
}

// Create validates and stores a new rule. Rules are active unless the request
// says otherwise.
func (s *Service) Create(ctx context.Context, req CreateRuleRequest) (*types.WarningRule, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	if err := validateSeverity(req.Severity); err != nil {
		return nil, err
	}
	if err := types.ValidateRuleParams(req.Type, req.Threshold, req.LookbackDays); err != nil {
		return nil, err
	}

	rule := &types.WarningRule{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		Type:         req.Type,
		Severity:     req.Severity,
		Threshold:    req.Threshold,
		LookbackDays: windowOnly(req.Type, req.LookbackDays),
		IsActive:     true,
		NotifyAdmin:  req.NotifyAdmin,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "warning rule created",
		"rule_id", rule.ID,
		"type", rule.Type,
		"severity", rule.Severity,
		"actor", types.ActorID(ctx),
	)
	return rule, nil
}

// Update applies a partial update. The rule type can never change; a patch
// carrying one is rejected before the store is read.
func (s *Service) Update(ctx context.Context, id string, req UpdateRuleRequest) (*types.WarningRule, error) {
	if req.Type != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationImmutableField,
			"rule type cannot be changed after creation", nil,
			map[string]any{"field": "type"})
	}
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}

	rule, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Severity != nil {
		if err := validateSeverity(*req.Severity); err != nil {
			return nil, err
		}
		rule.Severity = *req.Severity
	}
	if req.Threshold != nil {
		rule.Threshold = *req.Threshold
	}
	if req.LookbackDays != nil {
		rule.LookbackDays = req.LookbackDays
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if req.NotifyAdmin != nil {
		rule.NotifyAdmin = *req.NotifyAdmin
	}

	// Validate the merged rule, not just the patch.
	if err := types.ValidateRuleParams(rule.Type, rule.Threshold, rule.LookbackDays); err != nil {
		return nil, err
	}
	rule.LookbackDays = windowOnly(rule.Type, rule.LookbackDays)

	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "warning rule updated",
		"rule_id", rule.ID,
		"is_active", rule.IsActive,
		"actor", types.ActorID(ctx),
	)
	return rule, nil
}

// Delete removes a rule and, through the foreign key, its warnings.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "warning rule deleted", "rule_id", id, "actor", types.ActorID(ctx))
	return nil
}

// Get returns a single rule.
func (s *Service) Get(ctx context.Context, id string) (*types.WarningRule, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns every rule ordered by creation.
func (s *Service) List(ctx context.Context) ([]*types.WarningRule, error) {
	return s.repo.List(ctx)
}

// ListActive returns active rules ordered by creation, the order in which a
// detection run evaluates them.
func (s *Service) ListActive(ctx context.Context) ([]*types.WarningRule, error) {
	return s.repo.ListActive(ctx)
}

func (s *Service) validateStruct(req any) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.ValidateStruct(req)
}

func validateSeverity(sev types.Severity) error {
	if _, err := types.ParseSeverity(string(sev)); err != nil {
		return err
	}
	return nil
}

// windowOnly drops lookback for rule types that do not read it.
func windowOnly(ruleType types.RuleType, lookbackDays *int) *int {
	if !ruleType.IsWindowed() {
		return nil
	}
	return lookbackDays
}
