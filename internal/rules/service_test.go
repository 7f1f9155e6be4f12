package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guardian/internal/core"
	"guardian/internal/types"
)

// --- Mocks ---

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, rule *types.WarningRule) error {
	return m.Called(ctx, rule).Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*types.WarningRule, error) {
	args := m.Called(ctx, id)
	if r := args.Get(0); r != nil {
		return r.(*types.WarningRule), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepo) List(ctx context.Context) ([]*types.WarningRule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*types.WarningRule), args.Error(1)
}

func (m *mockRepo) ListActive(ctx context.Context) ([]*types.WarningRule, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*types.WarningRule), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, rule *types.WarningRule) error {
	return m.Called(ctx, rule).Error(0)
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }

func newService(repo *mockRepo) *Service {
	return NewService(repo, core.NewValidator(nil), nil)
}

func requireCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

// ============================================================
// Create Tests
// ============================================================

func TestService_Create_Success(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(r *types.WarningRule) bool {
		return r.ID != "" && r.IsActive && r.Type == types.RuleSnoozeAbuse && *r.LookbackDays == 7
	})).Return(nil)

	rule, err := svc.Create(context.Background(), CreateRuleRequest{
		Name:         "Snooze abuse",
		Type:         types.RuleSnoozeAbuse,
		Severity:     types.SeverityMedium,
		Threshold:    5,
		LookbackDays: intPtr(7),
		NotifyAdmin:  true,
	})
	require.NoError(t, err)
	assert.Len(t, rule.ID, 36)
	assert.True(t, rule.NotifyAdmin)
	repo.AssertExpectations(t)
}

func TestService_Create_InactiveAndNonWindowLookbackDropped(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	rule, err := svc.Create(context.Background(), CreateRuleRequest{
		Name:         "No contacts",
		Type:         types.RuleNoContacts,
		Severity:     types.SeverityLow,
		Threshold:    1,
		LookbackDays: intPtr(30),
		IsActive:     boolPtr(false),
	})
	require.NoError(t, err)
	assert.False(t, rule.IsActive)
	assert.Nil(t, rule.LookbackDays)
}

func TestService_Create_Validation(t *testing.T) {
	base := func() CreateRuleRequest {
		return CreateRuleRequest{
			Name:      "Missed",
			Type:      types.RuleConsecutiveMissed,
			Severity:  types.SeverityHigh,
			Threshold: 3,
		}
	}

	tests := []struct {
		name   string
		mutate func(*CreateRuleRequest)
		code   types.ErrorCode
	}{
		{"missing name", func(r *CreateRuleRequest) { r.Name = "" }, types.ErrCodeValidationMissingField},
		{"unknown severity", func(r *CreateRuleRequest) { r.Severity = "urgent" }, types.ErrCodeValidationInvalidValue},
		{"unknown type", func(r *CreateRuleRequest) { r.Type = "sleepy" }, types.ErrCodeValidationInvalidValue},
		{"zero threshold", func(r *CreateRuleRequest) { r.Threshold = 0 }, types.ErrCodeValidationThresholdRange},
		{"lookback too long", func(r *CreateRuleRequest) {
			r.Type = types.RuleInactivePeriod
			r.LookbackDays = intPtr(366)
		}, types.ErrCodeValidationLookbackRange},
		{"window type without lookback", func(r *CreateRuleRequest) {
			r.Type = types.RuleLateCheckinPattern
		}, types.ErrCodeValidationMissingField},
		{"late percentage above 100", func(r *CreateRuleRequest) {
			r.Type = types.RuleLateCheckinPattern
			r.LookbackDays = intPtr(14)
			r.Threshold = 101
		}, types.ErrCodeValidationThresholdRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			svc := newService(repo)

			req := base()
			tt.mutate(&req)
			_, err := svc.Create(context.Background(), req)
			requireCode(t, err, tt.code)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestService_Create_WithoutStructValidator(t *testing.T) {
	repo := new(mockRepo)
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateRuleRequest{
		Name:      "x",
		Type:      types.RuleConsecutiveMissed,
		Severity:  types.SeverityHigh,
		Threshold: 0,
	})
	requireCode(t, err, types.ErrCodeValidationThresholdRange)
}

// ============================================================
// Update Tests
// ============================================================

func existingRule() *types.WarningRule {
	return &types.WarningRule{
		ID:           "rule_1",
		Name:         "Inactive",
		Type:         types.RuleInactivePeriod,
		Severity:     types.SeverityMedium,
		Threshold:    5,
		LookbackDays: intPtr(14),
		IsActive:     true,
	}
}

func TestService_Update_RejectsTypeChange(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	rt := types.RuleInactivePeriod
	_, err := svc.Update(context.Background(), "rule_1", UpdateRuleRequest{Type: &rt})
	requireCode(t, err, types.ErrCodeValidationImmutableField)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestService_Update_Deactivate(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	repo.On("GetByID", mock.Anything, "rule_1").Return(existingRule(), nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(r *types.WarningRule) bool {
		return !r.IsActive && r.Threshold == 5
	})).Return(nil)

	rule, err := svc.Update(context.Background(), "rule_1", UpdateRuleRequest{IsActive: boolPtr(false)})
	require.NoError(t, err)
	assert.False(t, rule.IsActive)
	repo.AssertExpectations(t)
}

func TestService_Update_ValidatesMergedRule(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	repo.On("GetByID", mock.Anything, "rule_1").Return(existingRule(), nil)

	// Shrinking the window below the stored threshold makes the rule invalid.
	_, err := svc.Update(context.Background(), "rule_1", UpdateRuleRequest{LookbackDays: intPtr(3)})
	requireCode(t, err, types.ErrCodeValidationThresholdRange)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestService_Update_FieldsApplied(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	sev := types.SeverityCritical
	repo.On("GetByID", mock.Anything, "rule_1").Return(existingRule(), nil)
	repo.On("Update", mock.Anything, mock.Anything).Return(nil)

	rule, err := svc.Update(context.Background(), "rule_1", UpdateRuleRequest{
		Name:        strPtr("Long silence"),
		Description: strPtr("no activity"),
		Severity:    &sev,
		Threshold:   intPtr(7),
		NotifyAdmin: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "Long silence", rule.Name)
	assert.Equal(t, "no activity", rule.Description)
	assert.Equal(t, types.SeverityCritical, rule.Severity)
	assert.Equal(t, 7, rule.Threshold)
	assert.True(t, rule.NotifyAdmin)
}

func TestService_Update_NotFound(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	repo.On("GetByID", mock.Anything, "missing").
		Return(nil, types.NewAppError(types.ErrCodeNotFoundRule, "rule not found", nil))

	_, err := svc.Update(context.Background(), "missing", UpdateRuleRequest{Threshold: intPtr(2)})
	requireCode(t, err, types.ErrCodeNotFoundRule)
}

func TestService_Update_InvalidSeverity(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	sev := types.Severity("severe")
	_, err := svc.Update(context.Background(), "rule_1", UpdateRuleRequest{Severity: &sev})
	requireCode(t, err, types.ErrCodeValidationInvalidValue)
}

// ============================================================
// Delete / Read Tests
// ============================================================

func TestService_Delete(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	repo.On("Delete", mock.Anything, "rule_1").Return(nil)
	repo.On("Delete", mock.Anything, "missing").
		Return(types.NewAppError(types.ErrCodeNotFoundRule, "rule not found", nil))

	require.NoError(t, svc.Delete(context.Background(), "rule_1"))
	requireCode(t, svc.Delete(context.Background(), "missing"), types.ErrCodeNotFoundRule)
}

func TestService_ListAndGet(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	all := []*types.WarningRule{existingRule(), {ID: "rule_2"}}
	repo.On("List", mock.Anything).Return(all, nil)
	repo.On("ListActive", mock.Anything).Return(all[:1], nil)
	repo.On("GetByID", mock.Anything, "rule_2").Return(all[1], nil)

	got, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)

	active, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)

	one, err := svc.Get(context.Background(), "rule_2")
	require.NoError(t, err)
	assert.Equal(t, "rule_2", one.ID)
}
