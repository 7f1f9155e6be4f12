package types

import "fmt"

// Rule constraint constants.
const (
	MinThreshold       = 1
	MinLookbackDays    = 1
	MaxLookbackDays    = 365
	MaxLatePercent     = 100
	MaxRuleNameLength  = 200
	MaxDescriptionSize = 2000
)

// ValidateRuleParams applies the per-variant parameter rules for a rule of
// the given type. lookbackDays may be nil when the caller did not supply it.
func ValidateRuleParams(ruleType RuleType, threshold int, lookbackDays *int) error {
	if !ruleType.Valid() {
		return NewAppErrorWithDetails(ErrCodeValidationInvalidValue,
			fmt.Sprintf("unknown rule type %q", ruleType), nil,
			map[string]any{"field": "type", "allowed": AllRuleTypes})
	}

	if threshold < MinThreshold {
		return NewAppErrorWithDetails(ErrCodeValidationThresholdRange,
			fmt.Sprintf("threshold must be at least %d", MinThreshold), nil,
			map[string]any{"field": "threshold", "value": threshold})
	}

	if lookbackDays != nil && (*lookbackDays < MinLookbackDays || *lookbackDays > MaxLookbackDays) {
		return NewAppErrorWithDetails(ErrCodeValidationLookbackRange,
			fmt.Sprintf("lookback_days must be between %d and %d", MinLookbackDays, MaxLookbackDays), nil,
			map[string]any{"field": "lookback_days", "value": *lookbackDays})
	}

	if ruleType.IsWindowed() && lookbackDays == nil {
		return NewAppErrorWithDetails(ErrCodeValidationMissingField,
			fmt.Sprintf("lookback_days is required for %s rules", ruleType), nil,
			map[string]any{"field": "lookback_days", "type": ruleType})
	}

	switch ruleType {
	case RuleLateCheckinPattern:
		// Threshold is a percentage of check-ins in the window.
		if threshold > MaxLatePercent {
			return NewAppErrorWithDetails(ErrCodeValidationThresholdRange,
				fmt.Sprintf("threshold for %s is a percentage and must not exceed %d", ruleType, MaxLatePercent), nil,
				map[string]any{"field": "threshold", "value": threshold})
		}
	case RuleInactivePeriod:
		if threshold > *lookbackDays {
			return NewAppErrorWithDetails(ErrCodeValidationThresholdRange,
				"threshold for inactive_period must not exceed lookback_days", nil,
				map[string]any{"field": "threshold", "value": threshold, "lookback_days": *lookbackDays})
		}
	}

	return nil
}
