package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tenantly/tenantly/internal/cache"
	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/service"
)

const (
	goodToken  = "good-token"
	staticKey  = "static-key"
	sessionKey = "tk_session"
)

// fakeAuthn accepts goodToken, staticKey and sessionKey.
type fakeAuthn struct{}

func (fakeAuthn) ValidateBearer(_ context.Context, token string) (*model.Principal, error) {
	if token != goodToken {
		return nil, service.ErrInvalidToken
	}
	return &model.Principal{ID: "u1", Email: "u1@example.com", Role: "user", RoleID: "r1", Type: model.PrincipalUser}, nil
}

func (fakeAuthn) ValidateAPIKey(_ context.Context, key string) (*model.Principal, error) {
	switch key {
	case staticKey:
		return model.SystemPrincipal(), nil
	case sessionKey:
		return &model.Principal{ID: "u2", Role: model.APIRole, Type: model.PrincipalUser, KeyAuth: true}, nil
	}
	return nil, service.ErrInvalidKey
}

type fakeRoles map[string]*model.Role

func (f fakeRoles) Get(_ context.Context, id string) (*model.Role, error) {
	if r, ok := f[id]; ok {
		return r, nil
	}
	if id == "broken" {
		return nil, errors.New("db down")
	}
	return nil, service.NotFound("Role not found")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuth() *Auth {
	return NewAuth(fakeAuthn{}, "X-API-Key", nil, quietLogger())
}

// echoPrincipal responds 200 with the attached principal's ID, or "-".
var echoPrincipal = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id := "-"
	if p := GetPrincipal(r.Context()); p != nil {
		id = p.ID
	}
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, id)
})

func serve(h http.Handler, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func envelopeMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env model.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rr.Body.String(), err)
	}
	if env.Success {
		t.Error("failure envelope should have success=false")
	}
	return env.Message
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

func TestBearer(t *testing.T) {
	h := newTestAuth().Bearer(echoPrincipal)

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		message string
	}{
		{"missing", nil, 401, MsgTokenRequired},
		{"basic scheme", map[string]string{"Authorization": "Basic abc"}, 401, MsgTokenRequired},
		{"invalid", map[string]string{"Authorization": "Bearer nope"}, 401, MsgInvalidToken},
		{"valid", map[string]string{"Authorization": "Bearer " + goodToken}, 200, ""},
		{"lowercase scheme", map[string]string{"Authorization": "bearer " + goodToken}, 200, ""},
		{"api key ignored", map[string]string{"X-API-Key": staticKey}, 401, MsgTokenRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, tt.headers)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.message != "" {
				if got := envelopeMessage(t, rr); got != tt.message {
					t.Errorf("message = %q, want %q", got, tt.message)
				}
			} else if rr.Body.String() != "u1" {
				t.Errorf("principal = %q, want u1", rr.Body.String())
			}
		})
	}
}

func TestAPIKey(t *testing.T) {
	h := newTestAuth().APIKey(echoPrincipal)

	rr := serve(h, nil)
	if rr.Code != 401 || envelopeMessage(t, rr) != MsgKeyRequired {
		t.Errorf("missing key: %d %s", rr.Code, rr.Body.String())
	}
	rr = serve(h, map[string]string{"X-API-Key": "wrong"})
	if rr.Code != 401 || envelopeMessage(t, rr) != MsgInvalidKey {
		t.Errorf("wrong key: %d %s", rr.Code, rr.Body.String())
	}
	rr = serve(h, map[string]string{"X-API-Key": staticKey})
	if rr.Code != 200 || rr.Body.String() != model.SystemPrincipalID {
		t.Errorf("static key: %d %s", rr.Code, rr.Body.String())
	}
	rr = serve(h, map[string]string{"X-API-Key": sessionKey})
	if rr.Code != 200 || rr.Body.String() != "u2" {
		t.Errorf("session key: %d %s", rr.Code, rr.Body.String())
	}
}

func TestMultiFallsBackToKey(t *testing.T) {
	h := newTestAuth().Multi(echoPrincipal)

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		body    string
	}{
		{"nothing", nil, 401, ""},
		{"bearer only", map[string]string{"Authorization": "Bearer " + goodToken}, 200, "u1"},
		{"key only", map[string]string{"X-API-Key": staticKey}, 200, "system"},
		{"both valid prefers bearer", map[string]string{"Authorization": "Bearer " + goodToken, "X-API-Key": staticKey}, 200, "u1"},
		{"invalid bearer valid key", map[string]string{"Authorization": "Bearer expired", "X-API-Key": staticKey}, 200, "system"},
		{"both invalid", map[string]string{"Authorization": "Bearer expired", "X-API-Key": "wrong"}, 401, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, tt.headers)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.status == 401 {
				if got := envelopeMessage(t, rr); got != MsgTokenOrKey {
					t.Errorf("message = %q", got)
				}
				return
			}
			if rr.Body.String() != tt.body {
				t.Errorf("principal = %q, want %q", rr.Body.String(), tt.body)
			}
		})
	}
}

func TestOptionalNeverRejects(t *testing.T) {
	h := newTestAuth().Optional(echoPrincipal)

	if rr := serve(h, nil); rr.Code != 200 || rr.Body.String() != "-" {
		t.Errorf("anonymous: %d %q", rr.Code, rr.Body.String())
	}
	if rr := serve(h, map[string]string{"Authorization": "Bearer nope"}); rr.Code != 200 || rr.Body.String() != "-" {
		t.Errorf("invalid token: %d %q", rr.Code, rr.Body.String())
	}
	if rr := serve(h, map[string]string{"Authorization": "Bearer " + goodToken}); rr.Body.String() != "u1" {
		t.Errorf("valid token: %q", rr.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Authorization
// ---------------------------------------------------------------------------

func withPrincipal(h http.Handler, p *model.Principal) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), p))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuthorizationRequiresPrincipal(t *testing.T) {
	for name, mw := range map[string]func(http.Handler) http.Handler{
		"type":       RequireType(model.PrincipalAdmin),
		"role":       RequireRole(model.AdminRoleSuper),
		"permission": RequirePermission(fakeRoles{}, quietLogger(), model.PermReadComments),
	} {
		rr := withPrincipal(mw(echoPrincipal), nil)
		if rr.Code != 401 || envelopeMessage(t, rr) != MsgAuthRequired {
			t.Errorf("%s: got %d %s", name, rr.Code, rr.Body.String())
		}
	}
}

func TestRequireTypeAndRole(t *testing.T) {
	h := RequireType(model.PrincipalAdmin)(RequireRole(model.AdminRoleSuper)(echoPrincipal))

	super := &model.Principal{ID: "a1", Role: model.AdminRoleSuper, Type: model.PrincipalAdmin}
	admin := &model.Principal{ID: "a2", Role: model.AdminRoleAdmin, Type: model.PrincipalAdmin}
	user := &model.Principal{ID: "u1", Role: model.AdminRoleSuper, Type: model.PrincipalUser}

	if rr := withPrincipal(h, super); rr.Code != 200 {
		t.Errorf("super admin: %d", rr.Code)
	}
	if rr := withPrincipal(h, admin); rr.Code != 403 {
		t.Errorf("plain admin: %d", rr.Code)
	}
	if rr := withPrincipal(h, user); rr.Code != 403 {
		t.Errorf("user with admin-looking role: %d", rr.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	roles := fakeRoles{
		"reader":   {ID: "reader", IsActive: true, Permissions: model.NewPermissionSet(model.PermReadComments, model.PermReadProfile)},
		"writer":   {ID: "writer", IsActive: true, Permissions: model.NewPermissionSet(model.PermReadComments, model.PermWriteComments)},
		"disabled": {ID: "disabled", IsActive: false, Permissions: model.NewPermissionSet(model.PermWriteComments)},
	}
	h := RequirePermission(roles, quietLogger(), model.PermReadComments, model.PermWriteComments)(echoPrincipal)

	tests := []struct {
		name   string
		p      *model.Principal
		status int
	}{
		{"lacks write:comments", &model.Principal{ID: "u", RoleID: "reader", Type: model.PrincipalUser}, 403},
		{"has both", &model.Principal{ID: "u", RoleID: "writer", Type: model.PrincipalUser}, 200},
		{"inactive role", &model.Principal{ID: "u", RoleID: "disabled", Type: model.PrincipalUser}, 403},
		{"missing role", &model.Principal{ID: "u", RoleID: "gone", Type: model.PrincipalUser}, 403},
		{"lookup failure", &model.Principal{ID: "u", RoleID: "broken", Type: model.PrincipalUser}, 403},
		{"no role id", &model.Principal{ID: "u", Type: model.PrincipalUser}, 403},
		{"api bypass", &model.Principal{ID: "u", Role: model.APIRole, Type: model.PrincipalUser, KeyAuth: true}, 200},
		{"bearer user with api slug", &model.Principal{ID: "u", Role: model.APIRole, RoleID: "reader", Type: model.PrincipalUser}, 403},
		{"system bypass", model.SystemPrincipal(), 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := withPrincipal(h, tt.p)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if tt.status == 403 && envelopeMessage(t, rr) != MsgForbidden {
				t.Errorf("message = %q", rr.Body.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Response cache
// ---------------------------------------------------------------------------

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	backend, err := cache.NewMemoryBackend(100)
	if err != nil {
		t.Fatalf("NewMemoryBackend: %v", err)
	}
	c := cache.New(backend, cache.Options{Logger: quietLogger()})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestCacheResponse(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int32
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"call":`+strconv.Itoa(int(n))+`}`)
	})
	h := CacheResponse(c, "dashboard", time.Minute)(inner)

	get := func(path string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest("GET", path, nil))
		return rr
	}

	first := get("/stats")
	second := get("/stats")
	if first.Header().Get("X-Cache") != "MISS" || second.Header().Get("X-Cache") != "HIT" {
		t.Errorf("X-Cache = %q then %q", first.Header().Get("X-Cache"), second.Header().Get("X-Cache"))
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Errorf("bodies differ: %q vs %q", first.Body.String(), second.Body.String())
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Errorf("content type not replayed")
	}
	if calls.Load() != 1 {
		t.Errorf("handler called %d times, want 1", calls.Load())
	}

	// The query string is part of the key.
	get("/stats?range=7d")
	if calls.Load() != 2 {
		t.Errorf("handler called %d times, want 2", calls.Load())
	}

	c.DeletePattern(context.Background(), "cache:dashboard:*")
	get("/stats")
	if calls.Load() != 3 {
		t.Errorf("handler called %d times after invalidation, want 3", calls.Load())
	}
}

func TestCacheResponseSkipsErrorsAndWrites(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int32
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	h := CacheResponse(c, "dashboard", time.Minute)(inner)

	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/stats", nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/stats", strings.NewReader("{}")))
	if calls.Load() != 3 {
		t.Errorf("handler called %d times, want 3", calls.Load())
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestRateLimitReturnsEnvelope(t *testing.T) {
	h := RateLimit(2, time.Minute)(echoPrincipal)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	if got := envelopeMessage(t, last); got != MsgRateLimited {
		t.Errorf("message = %q", got)
	}
}

// ---------------------------------------------------------------------------
// RequestID and logging
// ---------------------------------------------------------------------------

func TestRequestIDGeneratesUUID(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetRequestID(r.Context()) == "" {
			t.Error("expected non-empty request ID in context")
		}
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/test", nil))

	respID := rr.Header().Get("X-Request-ID")
	// UUID v7 format check: 36 chars with dashes
	if len(respID) != 36 {
		t.Errorf("expected UUID-length request ID, got %q (len=%d)", respID, len(respID))
	}
}

func TestRequestIDClientValue(t *testing.T) {
	tests := []struct {
		in   string
		keep bool
	}{
		{"my-custom-trace-id-123", true},
		{"has space", false},
		{strings.Repeat("a", 200), false},
	}
	for _, tt := range tests {
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", tt.in)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if kept := rr.Header().Get("X-Request-ID") == tt.in; kept != tt.keep {
			t.Errorf("X-Request-ID %q kept=%v, want %v", tt.in, kept, tt.keep)
		}
	}
}

func TestLoggerIncludesPrincipal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logger(logger)(newTestAuth().Bearer(echoPrincipal))
	req := httptest.NewRequest("GET", "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+goodToken)
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["principal_id"] != "u1" {
		t.Errorf("principal_id = %v", entry["principal_id"])
	}
	if entry["status"] != float64(200) {
		t.Errorf("status = %v", entry["status"])
	}
}

func TestGetPrincipalWithoutValue(t *testing.T) {
	if GetPrincipal(context.Background()) != nil {
		t.Error("expected nil principal from bare context")
	}
}

func TestWrappedWriterSupportsHijack(t *testing.T) {
	raw := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "not a hijacker", http.StatusInternalServerError)
			return
		}
		conn, rw, err := hj.Hijack()
		if err != nil {
			t.Errorf("Hijack: %v", err)
			return
		}
		defer conn.Close()
		_, _ = rw.WriteString("HTTP/1.1 200 OK\r\nContent-Length: 8\r\nConnection: close\r\n\r\nhijacked")
		_ = rw.Flush()
	})
	h := Logger(quietLogger())(Metrics(nil)(raw))

	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "hijacked" {
		t.Errorf("status = %d, body = %q", resp.StatusCode, body)
	}
}

func TestWrappedWriterFlushes(t *testing.T) {
	rr := httptest.NewRecorder()
	h := Logger(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
	}))
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if !rr.Flushed || rr.Code != http.StatusOK {
		t.Errorf("flushed = %v, code = %d", rr.Flushed, rr.Code)
	}
}
