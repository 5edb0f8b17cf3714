package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tenantly/tenantly/internal/model"
)

const tokenIssuer = "tenantly"

// ErrInvalidToken is the only error Verify and DecodeUnsafe return. Bad
// signatures, expiry and malformed input are deliberately indistinguishable.
var ErrInvalidToken = errors.New("invalid or expired token")

type tokenClaims struct {
	Email  string              `json:"email"`
	Role   string              `json:"role"`
	RoleID string              `json:"roleId,omitempty"`
	Type   model.PrincipalType `json:"type"`
	jwt.RegisteredClaims
}

// TokenCodec signs and verifies HS256 bearer tokens carrying a Principal.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// NewTokenCodec returns a codec keyed by secret. An empty secret is a
// configuration error.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &TokenCodec{secret: []byte(secret), now: time.Now}, nil
}

// Sign encodes p with an expiry of now+ttl.
func (c *TokenCodec) Sign(p model.Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := c.now()
	claims := tokenClaims{
		Email:  p.Email,
		Role:   p.Role,
		RoleID: p.RoleID,
		Type:   p.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify checks signature and expiry and returns the encoded Principal.
func (c *TokenCodec) Verify(tokenStr string) (*model.Principal, error) {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims.principal(), nil
}

// DecodeUnsafe returns the Principal without checking the signature or
// expiry. Never use the result for an authorization decision.
func (c *TokenCodec) DecodeUnsafe(tokenStr string) (*model.Principal, error) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims.principal(), nil
}

// ExpiresAt returns the expiry embedded in tokenStr without verifying it.
func (c *TokenCodec) ExpiresAt(tokenStr string) (time.Time, error) {
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}

func (t *tokenClaims) principal() *model.Principal {
	return &model.Principal{
		ID:     t.Subject,
		Email:  t.Email,
		Role:   t.Role,
		RoleID: t.RoleID,
		Type:   t.Type,
	}
}
