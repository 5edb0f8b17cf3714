package model

import "time"

// User is a tenant account. RoleID points at the Role that decides the user's
// permissions; it is empty only when no role existed at registration time.
type User struct {
	ID           string     `json:"id" db:"id"`
	Email        string     `json:"email" db:"email"`
	PasswordHash string     `json:"-" db:"password_hash"`
	Name         string     `json:"name" db:"name"`
	RoleID       string     `json:"roleId,omitempty" db:"role_id"`
	IsActive     bool       `json:"isActive" db:"is_active"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
	CreatedAt    time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" db:"updated_at"`

	Role *Role `json:"role,omitempty" db:"-"`
}

// UserFilter narrows user listings.
type UserFilter struct {
	Search   string
	RoleID   string
	IsActive *bool
}

// Page describes an offset window into a listing.
type Page struct {
	Page  int
	Limit int
}

// Offset returns the row offset for the page (pages are 1-based).
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}
