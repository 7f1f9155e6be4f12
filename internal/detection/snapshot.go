package detection

import (
	"time"

	"guardian/internal/types"
)

const day = 24 * time.Hour

// UserRiskSnapshot is the per-user view an evaluator reads. It is computed
// from history for one rule's window and never persisted.
//
// Dates are user-local calendar dates represented as midnight UTC.
type UserRiskSnapshot struct {
	UserID string

	// EvaluatedDay is the most recent day whose deadline has passed: today if
	// the user's deadline already passed, otherwise yesterday.
	EvaluatedDay time.Time

	ConsecutiveMissed int
	LastCheckIn       *time.Time

	// Window counts cover [EvaluatedDay-lookback+1, EvaluatedDay], clipped so
	// the window never starts before monitoring began.
	WindowDays       int
	CheckInsInWindow int
	LateInWindow     int
	LongestInactive  int
	SnoozesInWindow  int

	CheckinEnabled bool
	ContactsCount  int
}

// LatePercent returns late check-ins as a percentage of check-ins in the
// window, or 0 when the window has none.
func (s *UserRiskSnapshot) LatePercent() float64 {
	if s.CheckInsInWindow == 0 {
		return 0
	}
	return float64(s.LateInWindow) * 100 / float64(s.CheckInsInWindow)
}

// BuildSnapshot derives a UserRiskSnapshot from raw history at instant now.
// lookbackDays sizes the window counts and may be zero for rules without a
// window. horizonDays bounds every backward scan to the history the caller
// actually loaded; zero means types.MaxLookbackDays.
func BuildSnapshot(h *types.UserHistory, now time.Time, lookbackDays, horizonDays int) *UserRiskSnapshot {
	loc := userLocation(h.Settings.Timezone)
	localNow := now.In(loc)
	today := civilDate(localNow)

	deadlineOffset, hasDeadline := parseDeadline(h.Settings.DeadlineTime)

	evaluated := today.Add(-day)
	if hasDeadline && !localNow.Before(atLocal(today, deadlineOffset, loc)) {
		evaluated = today
	}

	snap := &UserRiskSnapshot{
		UserID:         h.UserID,
		EvaluatedDay:   evaluated,
		CheckinEnabled: h.Settings.Enabled,
		ContactsCount:  h.ContactsCount,
	}

	if horizonDays <= 0 {
		horizonDays = types.MaxLookbackDays
	}
	// Earliest day any count may look at.
	floor := evaluated.Add(-time.Duration(horizonDays-1) * day)
	if !h.TrackingSince.IsZero() {
		if tracked := civilDate(h.TrackingSince.In(loc)); tracked.After(floor) {
			floor = tracked
		}
	}

	onTime := make(map[time.Time]bool, len(h.CheckIns))
	active := make(map[time.Time]bool, len(h.CheckIns))
	for _, c := range h.CheckIns {
		d := civilDate(c.Date)
		active[d] = true
		if isOnTime(c, d, deadlineOffset, hasDeadline, loc) {
			onTime[d] = true
		}
		if !d.After(evaluated) && (snap.LastCheckIn == nil || d.After(*snap.LastCheckIn)) {
			last := d
			snap.LastCheckIn = &last
		}
	}

	for d := evaluated; !d.Before(floor); d = d.Add(-day) {
		if onTime[d] {
			break
		}
		snap.ConsecutiveMissed++
	}

	if lookbackDays <= 0 {
		return snap
	}

	start := evaluated.Add(-time.Duration(lookbackDays-1) * day)
	if start.Before(floor) {
		start = floor
	}
	if start.After(evaluated) {
		return snap
	}

	gap := 0
	for d := start; !d.After(evaluated); d = d.Add(day) {
		snap.WindowDays++
		if active[d] {
			gap = 0
			continue
		}
		gap++
		if gap > snap.LongestInactive {
			snap.LongestInactive = gap
		}
	}

	for _, c := range h.CheckIns {
		d := civilDate(c.Date)
		if d.Before(start) || d.After(evaluated) {
			continue
		}
		snap.CheckInsInWindow++
		if !isOnTime(c, d, deadlineOffset, hasDeadline, loc) {
			snap.LateInWindow++
		}
	}

	for _, s := range h.SnoozeEvents {
		d := civilDate(s.Date)
		if !d.Before(start) && !d.After(evaluated) {
			snap.SnoozesInWindow++
		}
	}

	return snap
}

// userLocation resolves an IANA zone name, falling back to UTC.
func userLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// civilDate returns t's wall-clock date as midnight UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// atLocal returns the instant at offset past midnight of date in loc.
func atLocal(date time.Time, offset time.Duration, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(offset/time.Hour), int(offset%time.Hour/time.Minute), 0, 0, loc)
}

// parseDeadline parses "15:04" into an offset from midnight.
func parseDeadline(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, false
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, true
}

// isOnTime reports whether a check-in for date was made by that date's
// deadline. Without a deadline any check-in on the date counts.
func isOnTime(c types.CheckIn, date time.Time, deadline time.Duration, hasDeadline bool, loc *time.Location) bool {
	if !hasDeadline || c.CheckedInAt.IsZero() {
		return true
	}
	return !c.CheckedInAt.After(atLocal(date, deadline, loc))
}
