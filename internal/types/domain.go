package types

import "time"

// ============================================================
// Rules
// ============================================================

// WarningRule is an admin-authored condition template. Type is fixed at
// creation; every other field may be edited.
type WarningRule struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Type         RuleType  `json:"type"`
	Severity     Severity  `json:"severity"`
	Threshold    int       `json:"threshold"`
	LookbackDays *int      `json:"lookback_days,omitempty"`
	IsActive     bool      `json:"is_active"`
	NotifyAdmin  bool      `json:"notify_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Params returns the evaluation parameters of the rule.
func (r *WarningRule) Params() RuleParams {
	p := RuleParams{Threshold: r.Threshold}
	if r.LookbackDays != nil {
		p.LookbackDays = *r.LookbackDays
	}
	return p
}

// RuleParams are the numeric knobs an evaluator reads. LookbackDays is zero
// for rule types that do not use a window.
type RuleParams struct {
	Threshold    int
	LookbackDays int
}

// ============================================================
// Warnings
// ============================================================

// EarlyWarning is a concrete alert produced when a user violates an active rule.
// Severity is copied from the rule when the warning is created.
type EarlyWarning struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	RuleID         string     `json:"rule_id"`
	RuleName       string     `json:"rule_name,omitempty"`
	RuleType       RuleType   `json:"rule_type,omitempty"`
	Severity       Severity   `json:"severity"`
	Details        string     `json:"details"`
	IsAcknowledged bool       `json:"is_acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// WarningFilter selects warnings for listing. Nil fields are not applied.
type WarningFilter struct {
	Severity     *Severity
	Acknowledged *bool
	UserID       *string
	RuleID       *string
	PageRequest
}

// UpsertResult reports whether a conditional insert created a warning.
// Warning is the inserted row or the already-open one.
type UpsertResult struct {
	Created bool
	Warning *EarlyWarning
}

// WarningTotals are store-wide counts used by the dashboard.
type WarningTotals struct {
	Total          int
	Unacknowledged int
}

// ============================================================
// History (external collaborator data)
// ============================================================

// UserHistory is the raw per-user record set supplied by the history source.
// Calendar dates are user-local dates stored at midnight UTC.
type UserHistory struct {
	UserID        string
	CheckIns      []CheckIn
	Settings      CheckinSettings
	ContactsCount int
	SnoozeEvents  []SnoozeEvent
	// TrackingSince is when monitoring of the user began. Counting windows
	// never extend before its local date. Zero means unbounded.
	TrackingSince time.Time
}

// CheckIn is one recorded daily check-in.
type CheckIn struct {
	Date        time.Time
	CheckedInAt time.Time
}

// CheckinSettings is the user's check-in configuration. DeadlineTime is a
// local wall-clock time formatted "15:04".
type CheckinSettings struct {
	DeadlineTime string
	Enabled      bool
	Timezone     string
}

// SnoozeEvent records a reminder snooze on a local date.
type SnoozeEvent struct {
	Date time.Time
}

// ============================================================
// Detection runs
// ============================================================

// RunSummary reports the outcome of one detection pass.
type RunSummary struct {
	RunID             string     `json:"run_id"`
	Trigger           RunTrigger `json:"trigger"`
	RulesEvaluated    int        `json:"rules_evaluated"`
	EvaluatedUsers    int        `json:"evaluated_users"`
	WarningsCreated   int        `json:"warnings_created"`
	SkippedUsers      []string   `json:"skipped_users"`
	NotificationsSent int        `json:"notifications_sent"`
	TimedOut          bool       `json:"timed_out"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        time.Time  `json:"finished_at"`
}

// Status maps the summary onto a job history status.
func (s *RunSummary) Status() string {
	switch {
	case s.TimedOut:
		return JobStatusTimeout
	case len(s.SkippedUsers) > 0:
		return JobStatusPartial
	default:
		return JobStatusSuccess
	}
}

// JobRun is a persisted job_history entry.
type JobRun struct {
	ID         int64      `json:"id"`
	JobType    string     `json:"job_type"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ItemsCount int        `json:"items_count"`
	Error      *string    `json:"error,omitempty"`
}

// NotifyAdminEvent is emitted once per newly created warning whose rule has
// NotifyAdmin set. Delivery is handled downstream.
type NotifyAdminEvent struct {
	WarningID  string    `json:"warning_id"`
	Severity   Severity  `json:"severity"`
	UserID     string    `json:"user_id"`
	RuleType   RuleType  `json:"rule_type"`
	RuleID     string    `json:"rule_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ============================================================
// Dashboard projections
// ============================================================

// SeverityCounts holds per-severity warning counts.
type SeverityCounts struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// Add increments the counter for s. Unknown severities are ignored.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityLow:
		c.Low++
	case SeverityMedium:
		c.Medium++
	case SeverityHigh:
		c.High++
	case SeverityCritical:
		c.Critical++
	}
}

// AtRiskUser rolls up a user's unacknowledged warnings.
type AtRiskUser struct {
	UserID          string    `json:"user_id"`
	WarningCount    int       `json:"warning_count"`
	HighestSeverity Severity  `json:"highest_severity"`
	LatestWarningAt time.Time `json:"latest_warning_at"`
}

// WarningDashboard is the admin triage overview.
type WarningDashboard struct {
	TotalWarnings       int             `json:"total_warnings"`
	UnacknowledgedCount int             `json:"unacknowledged_count"`
	BySeverity          SeverityCounts  `json:"by_severity"`
	AtRiskUsers         []AtRiskUser    `json:"at_risk_users"`
	RecentWarnings      []*EarlyWarning `json:"recent_warnings"`
}
