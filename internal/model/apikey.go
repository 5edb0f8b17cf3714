package model

import "time"

// APISession is a persisted API key bound to an owning identity. The raw key
// is never stored; only a SHA-256 hash and a short prefix for identification.
type APISession struct {
	ID        string        `json:"id" db:"id"`
	KeyHash   string        `json:"-" db:"key_hash"`
	KeyPrefix string        `json:"keyPrefix" db:"key_prefix"`
	Label     string        `json:"label" db:"label"`
	OwnerID   string        `json:"ownerId" db:"owner_id"`
	OwnerType PrincipalType `json:"ownerType" db:"owner_type"`
	ExpiresAt time.Time     `json:"expiresAt" db:"expires_at"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
	LastUsed  *time.Time    `json:"lastUsed,omitempty" db:"last_used"`
}

// Expired reports whether the session is past its expiry at now.
func (s *APISession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
