package model

import "time"

// Admin represents an administrative account that manages tenants through the
// admin API. Passwords are stored as bcrypt hashes.
type Admin struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Name         string     `json:"name" db:"name"`
	Role         string     `json:"role" db:"role"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`
}

// Admin role names.
const (
	AdminRoleSuper     = "SUPER_ADMIN"
	AdminRoleAdmin     = "ADMIN"
	AdminRoleModerator = "MODERATOR"
)

// ValidAdminRole reports whether role is one of the admin role names.
func ValidAdminRole(role string) bool {
	switch role {
	case AdminRoleSuper, AdminRoleAdmin, AdminRoleModerator:
		return true
	}
	return false
}
