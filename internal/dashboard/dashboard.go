// Package dashboard builds the admin triage overview from the warning store.
// Nothing here is persisted; every call recomputes the projection.
package dashboard

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"guardian/internal/types"
)

// DefaultRecentLimit is the number of recent warnings returned when the
// service is built with a non-positive limit.
const DefaultRecentLimit = 10

// WarningReader is the read side of the warning store. Satisfied by
// db.WarningRepository.
type WarningReader interface {
	CountTotals(ctx context.Context) (types.WarningTotals, error)
	ListOpen(ctx context.Context) ([]*types.EarlyWarning, error)
	ListRecent(ctx context.Context, n int) ([]*types.EarlyWarning, error)
}

// Service serves the dashboard projection.
type Service struct {
	warnings    WarningReader
	recentLimit int
	logger      *slog.Logger
}

// NewService creates a dashboard Service.
func NewService(warnings WarningReader, recentLimit int, logger *slog.Logger) *Service {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{warnings: warnings, recentLimit: recentLimit, logger: logger}
}

// GetDashboard loads totals, open warnings and recent warnings concurrently
// and aggregates them.
func (s *Service) GetDashboard(ctx context.Context) (*types.WarningDashboard, error) {
	var (
		totals types.WarningTotals
		open   []*types.EarlyWarning
		recent []*types.EarlyWarning
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.warnings.CountTotals(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		open, err = s.warnings.ListOpen(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.warnings.ListRecent(gctx, s.recentLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to load dashboard", "error", err)
		return nil, err
	}

	return Aggregate(totals, open, recent), nil
}

// Aggregate builds the dashboard from store totals, every unacknowledged
// warning and the most recent warnings.
//
// UnacknowledgedCount and BySeverity both come from open, so they agree even
// when an acknowledge lands between the store reads. TotalWarnings is raised
// to at least the open count for the same reason.
//
// BySeverity counts open warnings. AtRiskUsers groups open warnings by user
// and is ordered by highest severity (ordinal rank), then warning count, both
// descending, then user ID.
func Aggregate(totals types.WarningTotals, open, recent []*types.EarlyWarning) *types.WarningDashboard {
	d := &types.WarningDashboard{
		TotalWarnings: totals.Total,
		AtRiskUsers:         []types.AtRiskUser{},
		RecentWarnings:      recent,
	}
	if d.RecentWarnings == nil {
		d.RecentWarnings = []*types.EarlyWarning{}
	}

	byUser := make(map[string]*types.AtRiskUser)
	for _, w := range open {
		if w.IsAcknowledged {
			continue
		}
		d.UnacknowledgedCount++
		d.BySeverity.Add(w.Severity)

		u, ok := byUser[w.UserID]
		if !ok {
			u = &types.AtRiskUser{UserID: w.UserID, HighestSeverity: w.Severity, LatestWarningAt: w.CreatedAt}
			byUser[w.UserID] = u
		}
		u.WarningCount++
		u.HighestSeverity = types.MaxSeverity(u.HighestSeverity, w.Severity)
		if w.CreatedAt.After(u.LatestWarningAt) {
			u.LatestWarningAt = w.CreatedAt
		}
	}

	d.TotalWarnings = max(d.TotalWarnings, d.UnacknowledgedCount)

	for _, u := range byUser {
		d.AtRiskUsers = append(d.AtRiskUsers, *u)
	}
	sort.Slice(d.AtRiskUsers, func(i, j int) bool {
		a, b := d.AtRiskUsers[i], d.AtRiskUsers[j]
		if ra, rb := a.HighestSeverity.Rank(), b.HighestSeverity.Rank(); ra != rb {
			return ra > rb
		}
		if a.WarningCount != b.WarningCount {
			return a.WarningCount > b.WarningCount
		}
		return a.UserID < b.UserID
	})

	return d
}
