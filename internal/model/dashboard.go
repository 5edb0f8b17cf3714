package model

import "time"

// DashboardStats is the aggregate shown on the admin dashboard.
type DashboardStats struct {
	TotalUsers    int64     `json:"totalUsers"`
	ActiveUsers   int64     `json:"activeUsers"`
	InactiveUsers int64     `json:"inactiveUsers"`
	NewUsers7d    int64     `json:"newUsersLast7Days"`
	TotalAdmins   int64     `json:"totalAdmins"`
	TotalRoles    int64     `json:"totalRoles"`
	ActiveRoles   int64     `json:"activeRoles"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// RoleCount is one row of the role distribution.
type RoleCount struct {
	RoleID   string `json:"roleId" db:"role_id"`
	RoleName string `json:"roleName" db:"role_name"`
	Users    int64  `json:"users" db:"users"`
}
