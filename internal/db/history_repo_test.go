package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guardian/internal/types"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestHistoryRepository_ListCandidateUsers(t *testing.T) {
	tests := []struct {
		name      string
		scope     types.CandidateScope
		wantJoin  bool
		wantUsers []string
	}{
		{name: "all monitored", scope: types.ScopeAllMonitored, wantJoin: false, wantUsers: []string{"u1", "u2", "u3"}},
		{name: "checkin enabled", scope: types.ScopeCheckinEnabled, wantJoin: true, wantUsers: []string{"u2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewHistoryRepository(db)

			data := make([][]any, 0, len(tt.wantUsers))
			for _, id := range tt.wantUsers {
				data = append(data, []any{id})
			}
			db.On("Query", mock.Anything, mock.MatchedBy(func(sql string) bool {
				return strings.Contains(sql, "JOIN checkin_settings") == tt.wantJoin &&
					strings.Contains(sql, "ORDER BY u.id")
			}), mock.Anything).Return(newMockRows(data...), nil)

			users, err := repo.ListCandidateUsers(context.Background(), tt.scope)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUsers, users)
			db.AssertExpectations(t)
		})
	}
}

func TestHistoryRepository_ListCandidateUsers_UnknownScope(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)

	_, err := repo.ListCandidateUsers(context.Background(), types.CandidateScope("everyone"))
	assert.True(t, types.HasCode(err, types.ErrCodeInternalUnexpected))
	db.AssertNotCalled(t, "Query", mock.Anything, mock.Anything, mock.Anything)
}

func TestHistoryRepository_GetUserHistory(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)
	ctx := context.Background()

	since := day(2026, 2, 1)
	tracked := time.Date(2025, 11, 3, 14, 0, 0, 0, time.UTC)

	db.On("QueryRow", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "LEFT JOIN checkin_settings")
	}), []any{"user_1"}).Return(rowOf(tracked, true, "10:00", "Europe/Berlin", 2))

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "FROM daily_checkins")
	}), []any{"user_1", since}).Return(newMockRows(
		[]any{day(2026, 3, 1), time.Date(2026, 3, 1, 8, 55, 0, 0, time.UTC)},
		[]any{day(2026, 3, 2), time.Date(2026, 3, 2, 9, 40, 0, 0, time.UTC)},
	), nil)

	db.On("Query", ctx, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "FROM snooze_events")
	}), []any{"user_1", since}).Return(newMockRows(
		[]any{day(2026, 3, 2)},
	), nil)

	h, err := repo.GetUserHistory(ctx, "user_1", since)
	require.NoError(t, err)
	assert.Equal(t, "user_1", h.UserID)
	assert.Equal(t, tracked, h.TrackingSince)
	assert.Equal(t, types.CheckinSettings{DeadlineTime: "10:00", Enabled: true, Timezone: "Europe/Berlin"}, h.Settings)
	assert.Equal(t, 2, h.ContactsCount)
	require.Len(t, h.CheckIns, 2)
	assert.Equal(t, day(2026, 3, 2), h.CheckIns[1].Date)
	require.Len(t, h.SnoozeEvents, 1)
	db.AssertExpectations(t)
}

func TestHistoryRepository_GetUserHistory_UserMissing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetUserHistory(context.Background(), "ghost", day(2026, 1, 1))
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundUser))
}

func TestHistoryRepository_GetUserHistory_QueryError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewHistoryRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rowOf(time.Now(), false, "", "UTC", 0))
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("statement timeout"))

	_, err := repo.GetUserHistory(context.Background(), "user_1", day(2026, 1, 1))
	assert.True(t, types.HasCode(err, types.ErrCodeInternalDB))
}
