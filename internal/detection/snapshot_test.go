package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/types"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// checkIn builds a check-in on the given UTC date at hh:mm UTC.
func checkIn(d time.Time, hh, mm int) types.CheckIn {
	return types.CheckIn{Date: d, CheckedInAt: d.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)}
}

func utcHistory(checkIns ...types.CheckIn) *types.UserHistory {
	return &types.UserHistory{
		UserID:        "user_1",
		CheckIns:      checkIns,
		Settings:      types.CheckinSettings{DeadlineTime: "10:00", Enabled: true, Timezone: "UTC"},
		ContactsCount: 1,
		TrackingSince: date(2026, 1, 1),
	}
}

func TestBuildSnapshot_EvaluatedDayFollowsDeadline(t *testing.T) {
	h := utcHistory()

	before := BuildSnapshot(h, time.Date(2026, 3, 10, 9, 59, 0, 0, time.UTC), 0, 0)
	assert.Equal(t, date(2026, 3, 9), before.EvaluatedDay)

	at := BuildSnapshot(h, time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC), 0, 0)
	assert.Equal(t, date(2026, 3, 10), at.EvaluatedDay)
}

func TestBuildSnapshot_UserTimezone(t *testing.T) {
	h := utcHistory()
	h.Settings.Timezone = "America/New_York"

	// 13:00 UTC is 09:00 in New York (EDT from March 8, 2026): deadline not yet passed.
	snap := BuildSnapshot(h, time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC), 0, 0)
	assert.Equal(t, date(2026, 3, 9), snap.EvaluatedDay)

	// 02:00 UTC on the 11th is still the 10th, 22:00, in New York.
	snap = BuildSnapshot(h, time.Date(2026, 3, 11, 2, 0, 0, 0, time.UTC), 0, 0)
	assert.Equal(t, date(2026, 3, 10), snap.EvaluatedDay)
}

func TestBuildSnapshot_InvalidTimezoneFallsBackToUTC(t *testing.T) {
	h := utcHistory()
	h.Settings.Timezone = "Mars/Olympus_Mons"

	snap := BuildSnapshot(h, time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC), 0, 0)
	assert.Equal(t, date(2026, 3, 10), snap.EvaluatedDay)
}

func TestBuildSnapshot_ConsecutiveMissed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		checkIns []types.CheckIn
		want     int
	}{
		{"checked in today", []types.CheckIn{checkIn(date(2026, 3, 10), 8, 0)}, 0},
		{"missed two days", []types.CheckIn{checkIn(date(2026, 3, 8), 8, 0)}, 2},
		{"late check-in counts as missed", []types.CheckIn{
			checkIn(date(2026, 3, 7), 8, 0),
			checkIn(date(2026, 3, 9), 11, 30),
		}, 3},
		{"deadline boundary is on time", []types.CheckIn{checkIn(date(2026, 3, 10), 10, 0)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := BuildSnapshot(utcHistory(tt.checkIns...), now, 0, 0)
			assert.Equal(t, tt.want, snap.ConsecutiveMissed)
		})
	}
}

func TestBuildSnapshot_TrackingSinceBoundsCounts(t *testing.T) {
	h := utcHistory()
	h.TrackingSince = time.Date(2026, 3, 8, 15, 0, 0, 0, time.UTC)

	snap := BuildSnapshot(h, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), 30, 0)
	assert.Equal(t, 3, snap.ConsecutiveMissed, "only 8th, 9th and 10th are observable")
	assert.Equal(t, 3, snap.WindowDays)
	assert.Equal(t, 3, snap.LongestInactive)
	assert.Nil(t, snap.LastCheckIn)
}

func TestBuildSnapshot_HorizonBoundsScan(t *testing.T) {
	h := utcHistory()
	h.TrackingSince = time.Time{}

	snap := BuildSnapshot(h, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), 0, 14)
	assert.Equal(t, 14, snap.ConsecutiveMissed)
}

func TestBuildSnapshot_WindowCounts(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	// The window is March 4-10. Feb 20 and the March 1 snooze fall outside it;
	// March 5 and 9 are late.
	h := utcHistory(
		checkIn(date(2026, 2, 20), 12, 0),
		checkIn(date(2026, 3, 4), 9, 0),
		checkIn(date(2026, 3, 5), 11, 0),
		checkIn(date(2026, 3, 9), 10, 30),
		checkIn(date(2026, 3, 10), 7, 0),
	)
	h.SnoozeEvents = []types.SnoozeEvent{
		{Date: date(2026, 3, 1)},
		{Date: date(2026, 3, 5)},
		{Date: date(2026, 3, 9)},
		{Date: date(2026, 3, 9)},
	}

	snap := BuildSnapshot(h, now, 7, 0)
	require.NotNil(t, snap.LastCheckIn)
	assert.Equal(t, date(2026, 3, 10), *snap.LastCheckIn)
	assert.Equal(t, 7, snap.WindowDays)
	assert.Equal(t, 4, snap.CheckInsInWindow)
	assert.Equal(t, 2, snap.LateInWindow)
	assert.InDelta(t, 50.0, snap.LatePercent(), 0.001)
	// March 6, 7, 8 have no activity.
	assert.Equal(t, 3, snap.LongestInactive)
	assert.Equal(t, 3, snap.SnoozesInWindow)
}

func TestBuildSnapshot_NoDeadlineUsesYesterday(t *testing.T) {
	h := utcHistory(checkIn(date(2026, 3, 9), 23, 0))
	h.Settings.DeadlineTime = ""

	snap := BuildSnapshot(h, time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC), 0, 0)
	assert.Equal(t, date(2026, 3, 9), snap.EvaluatedDay)
	assert.Equal(t, 0, snap.ConsecutiveMissed)
}

func TestLatePercent_EmptyWindow(t *testing.T) {
	assert.Zero(t, (&UserRiskSnapshot{}).LatePercent())
}
