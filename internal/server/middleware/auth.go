package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/service"
	"github.com/tenantly/tenantly/internal/telemetry"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// Failure messages returned by the authentication and authorization
// middleware.
const (
	MsgTokenRequired = "Unauthorized, token required"
	MsgInvalidToken  = "Unauthorized, invalid or expired token"
	MsgKeyRequired   = "Unauthorized, key required"
	MsgInvalidKey    = "Unauthorized, invalid key"
	MsgTokenOrKey    = "Unauthorized, provide token or key"
	MsgAuthRequired  = "Unauthorized, authentication required"
	MsgForbidden     = "Forbidden"
)

// Authenticator resolves raw credentials to a principal.
type Authenticator interface {
	ValidateBearer(ctx context.Context, token string) (*model.Principal, error)
	ValidateAPIKey(ctx context.Context, key string) (*model.Principal, error)
}

// Auth builds the authentication middleware variants around one
// Authenticator.
type Auth struct {
	authn   Authenticator
	header  string
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewAuth returns an Auth reading API keys from apiKeyHeader.
func NewAuth(authn Authenticator, apiKeyHeader string, metrics *telemetry.Metrics, logger *slog.Logger) *Auth {
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Auth{authn: authn, header: apiKeyHeader, metrics: metrics, logger: logger}
}

// APIKeyHeader returns the header API keys are read from.
func (a *Auth) APIKeyHeader() string { return a.header }

// Bearer requires a valid "Authorization: Bearer" token.
func (a *Auth) Bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			a.reject(w, "bearer", MsgTokenRequired)
			return
		}
		p, err := a.authn.ValidateBearer(r.Context(), token)
		if err != nil {
			a.reject(w, "bearer", MsgInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// APIKey requires a valid key in the API key header, either the static key
// or a persisted session key.
func (a *Auth) APIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.header)
		if key == "" {
			a.reject(w, "apikey", MsgKeyRequired)
			return
		}
		p, err := a.validateKey(r.Context(), key)
		if err != nil {
			a.reject(w, "apikey", MsgInvalidKey)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Multi accepts either credential. The bearer token is tried first; when it
// is absent or invalid the API key is tried next.
func (a *Auth) Multi(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := BearerToken(r); token != "" {
			if p, err := a.authn.ValidateBearer(r.Context(), token); err == nil {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}
			a.metrics.RecordAuthFailure("bearer")
		}
		if key := r.Header.Get(a.header); key != "" {
			if p, err := a.validateKey(r.Context(), key); err == nil {
				next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
				return
			}
			a.metrics.RecordAuthFailure("apikey")
		}
		writeError(w, http.StatusUnauthorized, MsgTokenOrKey)
	})
}

// Optional attaches a principal when a valid bearer token is present and
// never rejects the request.
func (a *Auth) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := BearerToken(r); token != "" {
			if p, err := a.authn.ValidateBearer(r.Context(), token); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) validateKey(ctx context.Context, key string) (*model.Principal, error) {
	p, err := a.authn.ValidateAPIKey(ctx, key)
	if err != nil && !errors.Is(err, service.ErrInvalidKey) {
		a.logger.Warn("api key validation failed", "error", err)
	}
	return p, err
}

func (a *Auth) reject(w http.ResponseWriter, scheme, msg string) {
	a.metrics.RecordAuthFailure(scheme)
	writeError(w, http.StatusUnauthorized, msg)
}

// BearerToken returns the token from an "Authorization: Bearer <token>"
// header, or "" when the header is missing or uses another scheme.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	if h, ok := ctx.Value(principalHolderKey).(*principalHolder); ok {
		h.set(p)
	}
	return context.WithValue(ctx, AuthPrincipalKey, p)
}

const principalHolderKey contextKeyAuth = "principal_holder"

// principalHolder lets the outer logging middleware see the principal an
// inner middleware attached.
type principalHolder struct {
	mu sync.Mutex
	p  *model.Principal
}

func (h *principalHolder) set(p *model.Principal) {
	h.mu.Lock()
	h.p = p
	h.mu.Unlock()
}

func (h *principalHolder) get() *model.Principal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.p
}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, principalHolderKey, h)
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *model.Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*model.Principal); ok {
		return p
	}
	return nil
}
