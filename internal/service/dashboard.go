package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tenantly/tenantly/internal/cache"
	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/model"
)

const recentUsersLimit = 10

// DashboardService computes the admin dashboard aggregates.
type DashboardService struct {
	store  *config.Store
	cache  *cache.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewDashboardService(d Deps) *DashboardService {
	d = d.withDefaults()
	return &DashboardService{store: d.Store, cache: d.Cache, logger: d.Logger, now: time.Now}
}

// Stats returns the headline counters.
func (s *DashboardService) Stats(ctx context.Context) (*model.DashboardStats, error) {
	return cache.GetOrCompute(ctx, s.cache, DashboardStatsKey, dashboardStatsTTL, s.computeStats)
}

func (s *DashboardService) computeStats(ctx context.Context) (*model.DashboardStats, error) {
	active, inactive := true, false
	st := &model.DashboardStats{GeneratedAt: s.now().UTC()}

	var err error
	if st.TotalUsers, err = s.store.CountUsers(ctx, model.UserFilter{}); err != nil {
		return nil, err
	}
	if st.ActiveUsers, err = s.store.CountUsers(ctx, model.UserFilter{IsActive: &active}); err != nil {
		return nil, err
	}
	if st.InactiveUsers, err = s.store.CountUsers(ctx, model.UserFilter{IsActive: &inactive}); err != nil {
		return nil, err
	}
	if st.NewUsers7d, err = s.store.CountUsersSince(ctx, s.now().Add(-7*24*time.Hour)); err != nil {
		return nil, err
	}
	if st.TotalAdmins, err = s.store.CountAdmins(ctx); err != nil {
		return nil, err
	}
	if st.TotalRoles, err = s.store.CountRoles(ctx, false); err != nil {
		return nil, err
	}
	if st.ActiveRoles, err = s.store.CountRoles(ctx, true); err != nil {
		return nil, err
	}
	return st, nil
}

// RoleDistribution returns the number of users per role.
func (s *DashboardService) RoleDistribution(ctx context.Context) ([]model.RoleCount, error) {
	return cache.GetOrCompute(ctx, s.cache, DashboardRoleDistributionKey, roleDistributionTTL, s.store.RoleDistribution)
}

// RecentUsers returns the newest registrations.
func (s *DashboardService) RecentUsers(ctx context.Context) ([]model.User, error) {
	return cache.GetOrCompute(ctx, s.cache, DashboardRecentUsersKey, recentUsersTTL, func(ctx context.Context) ([]model.User, error) {
		return s.store.ListUsers(ctx, model.UserFilter{}, model.Page{Page: 1, Limit: recentUsersLimit}, config.UserOrder("-createdAt"))
	})
}
