package service

import (
	"fmt"
	"time"
)

// Cache keys and invalidation patterns shared by the entity services.
const (
	roleDefaultKey = "role:default"

	usersPattern     = "users:*"
	userPattern      = "user:*"
	adminsPattern    = "admins:*"
	rolesPattern     = "roles:*"
	rolePattern      = "role:*"
	dashboardPattern = "dashboard:*"

	// DashboardResponsePattern covers the HTTP response cache entries of the
	// dashboard routes.
	DashboardResponsePattern = "cache:dashboard:*"

	DashboardStatsKey            = "dashboard:stats"
	DashboardRoleDistributionKey = "dashboard:role-distribution"
	DashboardRecentUsersKey      = "dashboard:recent-users"
)

// Aggregate reads tolerate more staleness than single entities.
const (
	dashboardStatsTTL   = 5 * time.Minute
	roleDistributionTTL = 10 * time.Minute
	recentUsersTTL      = 2 * time.Minute
	listTTL             = 5 * time.Minute
)

func userKey(id string) string  { return "user:" + id }
func adminKey(id string) string { return "admin:" + id }
func roleKey(id string) string  { return "role:" + id }

func userListKey(in ListUsersInput) string {
	active := "any"
	if in.IsActive != nil {
		active = fmt.Sprint(*in.IsActive)
	}
	return fmt.Sprintf("users:list:p=%d:l=%d:q=%s:r=%s:a=%s:s=%s",
		in.Page, in.Limit, in.Search, in.RoleID, active, in.Sort)
}

func adminListKey(page, limit int) string {
	return fmt.Sprintf("admins:list:p=%d:l=%d", page, limit)
}

func roleListKey(activeOnly bool) string {
	if activeOnly {
		return "roles:list:active"
	}
	return "roles:list:all"
}
