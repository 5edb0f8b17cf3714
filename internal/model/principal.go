package model

// PrincipalType distinguishes user identities from admin identities.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "user"
	PrincipalAdmin PrincipalType = "admin"
)

// Sentinels used for key-based access.
const (
	SystemPrincipalID = "system"
	APIRole           = "api"
)

// Principal is the resolved identity attached to a request after successful
// authentication. It is built per request and never persisted.
type Principal struct {
	ID     string        `json:"id"`
	Email  string        `json:"email"`
	Role   string        `json:"role"`
	RoleID string        `json:"roleId,omitempty"`
	Type   PrincipalType `json:"type"`

	// KeyAuth is set only when the identity was resolved from an API key.
	// It is never encoded into tokens, so a role slug cannot forge it.
	KeyAuth bool `json:"-"`
}

// IsAPI reports whether the principal came from API key access.
func (p *Principal) IsAPI() bool {
	return p != nil && p.KeyAuth && p.Role == APIRole
}

// SystemPrincipal is the identity resolved from the static configured key.
func SystemPrincipal() *Principal {
	return &Principal{
		ID:      SystemPrincipalID,
		Email:   SystemPrincipalID,
		Role:    APIRole,
		Type:    PrincipalAdmin,
		KeyAuth: true,
	}
}
