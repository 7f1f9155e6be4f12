// Package detection runs early warning detection: it evaluates every active
// rule against its candidate users, records violations as deduplicated
// warnings, and emits notifyAdmin events for newly created ones.
package detection

import (
	"fmt"

	"guardian/internal/types"
)

// Outcome is the result of evaluating one rule for one user.
type Outcome struct {
	Violated bool
	Details  string
}

// noViolation is the zero Outcome.
var noViolation = Outcome{}

// Evaluator decides whether a snapshot violates a rule. Implementations are
// pure and safe for concurrent use.
type Evaluator interface {
	Evaluate(snap *UserRiskSnapshot, params types.RuleParams) Outcome
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(snap *UserRiskSnapshot, params types.RuleParams) Outcome

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(snap *UserRiskSnapshot, params types.RuleParams) Outcome {
	return f(snap, params)
}

// Registry maps a rule type to its evaluator.
type Registry map[types.RuleType]Evaluator

// DefaultEvaluators returns the evaluator for every built-in rule type.
func DefaultEvaluators() Registry {
	return Registry{
		types.RuleConsecutiveMissed:  EvaluatorFunc(evalConsecutiveMissed),
		types.RuleLateCheckinPattern: EvaluatorFunc(evalLateCheckinPattern),
		types.RuleSettingsDisabled:   EvaluatorFunc(evalSettingsDisabled),
		types.RuleNoContacts:         EvaluatorFunc(evalNoContacts),
		types.RuleInactivePeriod:     EvaluatorFunc(evalInactivePeriod),
		types.RuleSnoozeAbuse:        EvaluatorFunc(evalSnoozeAbuse),
	}
}

// Lookup returns the evaluator for ruleType.
func (r Registry) Lookup(ruleType types.RuleType) (Evaluator, bool) {
	e, ok := r[ruleType]
	return e, ok
}

func evalConsecutiveMissed(snap *UserRiskSnapshot, p types.RuleParams) Outcome {
	if snap.ConsecutiveMissed < p.Threshold {
		return noViolation
	}
	last := "no check-in on record"
	if snap.LastCheckIn != nil {
		last = "last check-in " + snap.LastCheckIn.Format("2006-01-02")
	}
	return Outcome{
		Violated: true,
		Details: fmt.Sprintf("%d consecutive days without an on-time check-in up to %s (threshold %d, %s)",
			snap.ConsecutiveMissed, snap.EvaluatedDay.Format("2006-01-02"), p.Threshold, last),
	}
}

// Threshold is a percentage of the check-ins in the window. A window with no
// check-ins has no late pattern; inactive_period covers that case.
func evalLateCheckinPattern(snap *UserRiskSnapshot, p types.RuleParams) Outcome {
	if snap.CheckInsInWindow == 0 || snap.LatePercent() < float64(p.Threshold) {
		return noViolation
	}
	return Outcome{
		Violated: true,
		Details: fmt.Sprintf("%d of %d check-ins in the last %d days were late (%.0f%%, threshold %d%%)",
			snap.LateInWindow, snap.CheckInsInWindow, snap.WindowDays, snap.LatePercent(), p.Threshold),
	}
}

func evalSettingsDisabled(snap *UserRiskSnapshot, _ types.RuleParams) Outcome {
	if snap.CheckinEnabled {
		return noViolation
	}
	return Outcome{Violated: true, Details: "daily check-in is disabled"}
}

func evalNoContacts(snap *UserRiskSnapshot, _ types.RuleParams) Outcome {
	if !snap.CheckinEnabled || snap.ContactsCount > 0 {
		return noViolation
	}
	return Outcome{Violated: true, Details: "check-in is enabled but no emergency contacts are configured"}
}

func evalInactivePeriod(snap *UserRiskSnapshot, p types.RuleParams) Outcome {
	if snap.LongestInactive < p.Threshold {
		return noViolation
	}
	return Outcome{
		Violated: true,
		Details: fmt.Sprintf("%d consecutive days with no check-in within the last %d days (threshold %d)",
			snap.LongestInactive, snap.WindowDays, p.Threshold),
	}
}

func evalSnoozeAbuse(snap *UserRiskSnapshot, p types.RuleParams) Outcome {
	if snap.SnoozesInWindow < p.Threshold {
		return noViolation
	}
	return Outcome{
		Violated: true,
		Details: fmt.Sprintf("%d reminder snoozes in the last %d days (threshold %d)",
			snap.SnoozesInWindow, snap.WindowDays, p.Threshold),
	}
}
