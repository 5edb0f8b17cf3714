package model

import "time"

// Role is a named, permission-bearing entity that users reference to decide
// what they may do. At most one role carries IsDefault at any time.
type Role struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Slug        string        `json:"slug"`
	Description string        `json:"description"`
	Permissions PermissionSet `json:"permissions"`
	IsDefault   bool          `json:"isDefault"`
	IsActive    bool          `json:"isActive"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Known permission strings. Roles may carry any "action:resource" string; this
// list is what the permissions catalog endpoint advertises.
const (
	PermReadProfile   = "read:profile"
	PermWriteProfile  = "write:profile"
	PermReadComments  = "read:comments"
	PermWriteComments = "write:comments"
	PermReadUsers     = "read:users"
	PermWriteUsers    = "write:users"
	PermReadRoles     = "read:roles"
	PermWriteRoles    = "write:roles"
	PermReadDashboard = "read:dashboard"
)

// KnownPermissions returns the advertised permission catalog in display order.
func KnownPermissions() []string {
	return []string{
		PermReadProfile, PermWriteProfile,
		PermReadComments, PermWriteComments,
		PermReadUsers, PermWriteUsers,
		PermReadRoles, PermWriteRoles,
		PermReadDashboard,
	}
}

// DefaultRolePermissions is granted to the role seeded on first start.
func DefaultRolePermissions() PermissionSet {
	return NewPermissionSet(PermReadProfile, PermWriteProfile, PermReadComments, PermWriteComments)
}
