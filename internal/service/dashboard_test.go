package service

import (
	"context"
	"testing"
)

func TestDashboardStatsCachedUntilWrite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ann@example.com")

	stats, err := env.svc.Dashboard.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalUsers != 1 || stats.ActiveUsers != 1 || stats.TotalRoles != 1 || stats.NewUsers7d != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	again, _ := env.svc.Dashboard.Stats(ctx)
	if !again.GeneratedAt.Equal(stats.GeneratedAt) {
		t.Error("second read should come from cache")
	}

	env.register(t, "bob@example.com")
	fresh, _ := env.svc.Dashboard.Stats(ctx)
	if fresh.TotalUsers != 2 {
		t.Errorf("stats not invalidated by register: %+v", fresh)
	}
}

func TestDashboardRoleDistributionAndRecent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ann@example.com")
	env.register(t, "bob@example.com")

	dist, err := env.svc.Dashboard.RoleDistribution(ctx)
	if err != nil {
		t.Fatalf("RoleDistribution: %v", err)
	}
	if len(dist) != 1 || dist[0].Users != 2 {
		t.Errorf("distribution = %+v", dist)
	}

	recent, err := env.svc.Dashboard.RecentUsers(ctx)
	if err != nil {
		t.Fatalf("RecentUsers: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("got %d recent users", len(recent))
	}
}
