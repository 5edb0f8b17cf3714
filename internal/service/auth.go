package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tenantly/tenantly/internal/config"
	"github.com/tenantly/tenantly/internal/model"
)

const (
	sessionKeyPrefix = "tk_"
	sessionKeyBytes  = 32
	// Stored prefix: "tk_" plus the first eight hex characters.
	sessionKeyDisplayLen = len(sessionKeyPrefix) + 8
	defaultSessionTTL    = 30 * 24 * time.Hour
	defaultUserRole      = "user"
)

// ErrInvalidKey is returned for an unknown or expired API key.
var ErrInvalidKey = errors.New("invalid api key")

// AuthOptions configures token lifetimes and the static API key.
type AuthOptions struct {
	StaticAPIKey string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
}

// LoginInput is the payload for user and admin login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshInput carries a refresh token.
type RefreshInput struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// CreateKeyInput is the payload for minting a session API key.
type CreateKeyInput struct {
	Label         string `json:"label" validate:"max=100"`
	ExpiresInDays int    `json:"expiresInDays" validate:"min=0,max=365"`
}

// TokenPair is an access token plus its refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// AuthResult is returned by register, login and refresh.
type AuthResult struct {
	User   *model.User  `json:"user,omitempty"`
	Admin  *model.Admin `json:"admin,omitempty"`
	Tokens TokenPair    `json:"tokens"`
}

// MeResult describes the caller.
type MeResult struct {
	Principal *model.Principal `json:"principal"`
	User      *model.User      `json:"user,omitempty"`
	Admin     *model.Admin     `json:"admin,omitempty"`
}

// CreatedKey holds a freshly minted session key. Key is shown exactly once.
type CreatedKey struct {
	Key     string            `json:"key"`
	Session *model.APISession `json:"session"`
}

// AuthService resolves credentials to principals and runs the login flows.
type AuthService struct {
	store     *config.Store
	codec     *TokenCodec
	users     *UserService
	admins    *AdminService
	roles     *RoleService
	staticKey []byte
	access    time.Duration
	refresh   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewAuthService(d Deps, codec *TokenCodec, users *UserService, admins *AdminService, roles *RoleService, opts AuthOptions) *AuthService {
	d = d.withDefaults()
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 7 * 24 * time.Hour
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = config.RefreshTokenTTL
	}
	return &AuthService{
		store:     d.Store,
		codec:     codec,
		users:     users,
		admins:    admins,
		roles:     roles,
		staticKey: []byte(opts.StaticAPIKey),
		access:    opts.AccessTTL,
		refresh:   opts.RefreshTTL,
		logger:    d.Logger,
		now:       time.Now,
	}
}

// ValidateBearer verifies a bearer token. It does not touch the store.
func (s *AuthService) ValidateBearer(_ context.Context, token string) (*model.Principal, error) {
	return s.codec.Verify(token)
}

// ValidateAPIKey matches rawKey against the static key first, then against
// persisted session keys.
func (s *AuthService) ValidateAPIKey(ctx context.Context, rawKey string) (*model.Principal, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	if len(s.staticKey) > 0 && subtle.ConstantTimeCompare([]byte(rawKey), s.staticKey) == 1 {
		return model.SystemPrincipal(), nil
	}

	sess, err := s.store.GetAPISessionByHash(ctx, config.HashAPIKey(rawKey))
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			s.logger.Warn("api session lookup failed", "error", err)
		}
		return nil, ErrInvalidKey
	}
	if sess.Expired(s.now()) {
		return nil, ErrInvalidKey
	}

	if err := s.store.TouchAPISession(ctx, sess.ID); err != nil {
		s.logger.Warn("api session touch failed", "session_id", sess.ID, "error", err)
	}

	return &model.Principal{
		ID:      sess.OwnerID,
		Role:    model.APIRole,
		Type:    sess.OwnerType,
		KeyAuth: true,
	}, nil
}

// RegisterUser creates a user and signs them in.
func (s *AuthService) RegisterUser(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	u, err := s.users.Register(ctx, in)
	if err != nil {
		return nil, err
	}
	tokens, err := s.issue(userPrincipal(u, u.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Tokens: *tokens}, nil
}

// LoginUser checks user credentials and issues tokens.
func (s *AuthService) LoginUser(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, Unauthorized("Invalid credentials")
		}
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, in.Password) {
		return nil, Unauthorized("Invalid credentials")
	}
	if !u.IsActive {
		return nil, Unauthorized("Account is deactivated")
	}

	s.users.RecordLogin(ctx, u.ID)
	full, err := s.users.Get(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	tokens, err := s.issue(userPrincipal(full, full.Role))
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: full, Tokens: *tokens}, nil
}

// LoginAdmin checks admin credentials and issues tokens.
func (s *AuthService) LoginAdmin(ctx context.Context, in LoginInput) (*AuthResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	admin, err := s.store.GetAdminByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return nil, Unauthorized("Invalid credentials")
		}
		return nil, err
	}
	if !CheckPassword(admin.PasswordHash, in.Password) {
		return nil, Unauthorized("Invalid credentials")
	}
	if !admin.IsActive {
		return nil, Unauthorized("Account is deactivated")
	}

	s.admins.RecordLogin(ctx, admin.ID)
	tokens, err := s.issue(adminPrincipal(admin))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Admin: admin, Tokens: *tokens}, nil
}

// Refresh exchanges a refresh token for a new pair. The identity is reloaded
// so deactivated or deleted accounts cannot refresh.
//
// Refresh tokens verify exactly like access tokens; nothing distinguishes
// them but their lifetime.
func (s *AuthService) Refresh(ctx context.Context, in RefreshInput) (*AuthResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	p, err := s.codec.Verify(in.RefreshToken)
	if err != nil {
		return nil, Unauthorized("Invalid or expired refresh token")
	}

	switch p.Type {
	case model.PrincipalUser:
		u, err := s.users.Get(ctx, p.ID)
		if err != nil || !u.IsActive {
			return nil, Unauthorized("Account is no longer active")
		}
		tokens, err := s.issue(userPrincipal(u, u.Role))
		if err != nil {
			return nil, err
		}
		return &AuthResult{User: u, Tokens: *tokens}, nil
	case model.PrincipalAdmin:
		a, err := s.admins.Get(ctx, p.ID)
		if err != nil || !a.IsActive {
			return nil, Unauthorized("Account is no longer active")
		}
		tokens, err := s.issue(adminPrincipal(a))
		if err != nil {
			return nil, err
		}
		return &AuthResult{Admin: a, Tokens: *tokens}, nil
	}
	return nil, Unauthorized("Invalid or expired refresh token")
}

// Me returns the caller's principal and, for account-backed principals, the
// account itself.
func (s *AuthService) Me(ctx context.Context, p *model.Principal) (*MeResult, error) {
	if p == nil {
		return nil, Unauthorized("Unauthorized, authentication required")
	}
	out := &MeResult{Principal: p}
	if p.ID == model.SystemPrincipalID {
		return out, nil
	}
	var err error
	switch p.Type {
	case model.PrincipalUser:
		out.User, err = s.users.Get(ctx, p.ID)
	case model.PrincipalAdmin:
		out.Admin, err = s.admins.Get(ctx, p.ID)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSessionKey mints a persisted API key owned by p.
func (s *AuthService) CreateSessionKey(ctx context.Context, p *model.Principal, in CreateKeyInput) (*CreatedKey, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if p == nil || p.IsAPI() {
		return nil, Forbidden("Session keys can only be created by signed-in accounts")
	}

	raw, err := generateSessionKey()
	if err != nil {
		return nil, err
	}
	ttl := defaultSessionTTL
	if in.ExpiresInDays > 0 {
		ttl = time.Duration(in.ExpiresInDays) * 24 * time.Hour
	}
	sess := &model.APISession{
		KeyHash:   config.HashAPIKey(raw),
		KeyPrefix: raw[:sessionKeyDisplayLen],
		Label:     in.Label,
		OwnerID:   p.ID,
		OwnerType: p.Type,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.store.CreateAPISession(ctx, sess); err != nil {
		return nil, err
	}
	s.logger.Info("session key created", "owner_id", p.ID, "prefix", sess.KeyPrefix)
	return &CreatedKey{Key: raw, Session: sess}, nil
}

// ListSessionKeys returns the keys owned by p.
func (s *AuthService) ListSessionKeys(ctx context.Context, p *model.Principal) ([]model.APISession, error) {
	if p == nil {
		return nil, Unauthorized("Authentication required")
	}
	return s.store.ListAPISessions(ctx, p.ID)
}

// RevokeSessionKey deletes one of p's keys.
func (s *AuthService) RevokeSessionKey(ctx context.Context, p *model.Principal, id string) error {
	if p == nil {
		return Unauthorized("Authentication required")
	}
	return storeError(s.store.DeleteAPISession(ctx, id, p.ID), "API key not found", "")
}

func (s *AuthService) issue(p model.Principal) (*TokenPair, error) {
	access, err := s.codec.Sign(p, s.access)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.codec.Sign(p, s.refresh)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.access / time.Second),
	}, nil
}

func userPrincipal(u *model.User, role *model.Role) model.Principal {
	p := model.Principal{
		ID:     u.ID,
		Email:  u.Email,
		Role:   defaultUserRole,
		RoleID: u.RoleID,
		Type:   model.PrincipalUser,
	}
	if role != nil {
		p.Role = role.Slug
	}
	return p
}

func adminPrincipal(a *model.Admin) model.Principal {
	return model.Principal{
		ID:    a.ID,
		Email: a.Email,
		Role:  a.Role,
		Type:  model.PrincipalAdmin,
	}
}

// generateSessionKey returns "tk_" followed by 64 hex characters.
func generateSessionKey() (string, error) {
	b := make([]byte, sessionKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return sessionKeyPrefix + hex.EncodeToString(b), nil
}
