package types

import "fmt"

// RuleType identifies the evaluation policy a WarningRule applies.
type RuleType string

const (
	RuleConsecutiveMissed  RuleType = "consecutive_missed"
	RuleLateCheckinPattern RuleType = "late_checkin_pattern"
	RuleSettingsDisabled   RuleType = "settings_disabled"
	RuleNoContacts         RuleType = "no_contacts"
	RuleInactivePeriod     RuleType = "inactive_period"
	RuleSnoozeAbuse        RuleType = "snooze_abuse"
)

// AllRuleTypes lists every supported rule type in a stable order.
var AllRuleTypes = []RuleType{
	RuleConsecutiveMissed,
	RuleLateCheckinPattern,
	RuleSettingsDisabled,
	RuleNoContacts,
	RuleInactivePeriod,
	RuleSnoozeAbuse,
}

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	for _, known := range AllRuleTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsWindowed reports whether the rule type evaluates over a lookback window
// and therefore requires LookbackDays.
func (t RuleType) IsWindowed() bool {
	switch t {
	case RuleLateCheckinPattern, RuleInactivePeriod, RuleSnoozeAbuse:
		return true
	default:
		return false
	}
}

// Severity is the admin-assigned urgency of a rule and of the warnings it creates.
// Severities are ordered by Rank, never by their string value.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRank is the single ordinal table used for every severity comparison.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal of s, or -1 for an unknown severity.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// MaxSeverity returns the higher-ranked of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParseSeverity converts a raw string into a Severity.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(raw)
	if !s.Valid() {
		return "", NewAppErrorWithDetails(ErrCodeValidationInvalidValue,
			fmt.Sprintf("unknown severity %q", raw), nil,
			map[string]any{"field": "severity", "allowed": []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}})
	}
	return s, nil
}

// CandidateScope selects which users a rule is evaluated against.
type CandidateScope string

const (
	// ScopeAllMonitored is every monitored user regardless of settings.
	ScopeAllMonitored CandidateScope = "all_monitored"
	// ScopeCheckinEnabled is monitored users with the check-in feature on.
	ScopeCheckinEnabled CandidateScope = "checkin_enabled"
)

// CandidateScope returns the user population the rule type applies to.
// Only settings_disabled looks at users who have switched check-ins off.
func (t RuleType) CandidateScope() CandidateScope {
	if t == RuleSettingsDisabled {
		return ScopeAllMonitored
	}
	return ScopeCheckinEnabled
}

// RunTrigger records what started a detection run.
type RunTrigger string

const (
	TriggerManual    RunTrigger = "manual"
	TriggerScheduled RunTrigger = "scheduled"
)

// Job history statuses for detection runs.
const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusPartial = "partial"
	JobStatusTimeout = "timeout"
	JobStatusFailed  = "failed"
)

// JobTypeDetection is the job_history job_type recorded for detection runs.
const JobTypeDetection = "early_warning_detection"
