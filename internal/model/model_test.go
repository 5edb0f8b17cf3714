package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAdminPasswordHashNotInJSON(t *testing.T) {
	admin := Admin{
		ID:           "a1",
		Email:        "admin@example.com",
		PasswordHash: "$2a$10$somebcrypthash",
		Name:         "Admin User",
		Role:         AdminRoleSuper,
		IsActive:     true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	b, err := json.Marshal(admin)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}

	for _, key := range []string{"password_hash", "passwordHash", "PasswordHash"} {
		if _, ok := m[key]; ok {
			t.Errorf("%s should NOT appear in JSON output", key)
		}
	}
	if m["role"] != AdminRoleSuper {
		t.Errorf("role = %v, want %q", m["role"], AdminRoleSuper)
	}
}

func TestUserPasswordHashNotInJSON(t *testing.T) {
	u := User{ID: "u1", Email: "alice@example.com", PasswordHash: "secret-hash"}
	b, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	if !json.Valid(b) {
		t.Fatalf("invalid JSON: %s", b)
	}
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if _, ok := m["passwordHash"]; ok {
		t.Error("passwordHash should not be serialized")
	}
	if _, ok := m["role"]; ok {
		t.Error("role should be omitted when not loaded")
	}
}

func TestAPISessionKeyHashNotInJSON(t *testing.T) {
	s := APISession{ID: "k1", KeyHash: "deadbeef", KeyPrefix: "tk_abcd", OwnerType: PrincipalUser}
	b, _ := json.Marshal(s)
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if _, ok := m["keyHash"]; ok {
		t.Error("keyHash should not be serialized")
	}
	if m["keyPrefix"] != "tk_abcd" {
		t.Errorf("keyPrefix = %v", m["keyPrefix"])
	}
}

func TestAPISessionExpired(t *testing.T) {
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	s := APISession{ExpiresAt: now}
	if !s.Expired(now) {
		t.Error("session should be expired at its expiry instant")
	}
	if s.Expired(now.Add(-time.Second)) {
		t.Error("session should be valid before expiry")
	}
}

func TestPermissionSetNormalizes(t *testing.T) {
	s := NewPermissionSet("read:comments", " write:comments ", "", "read:comments")
	if len(s) != 2 {
		t.Fatalf("len = %d, want 2 (%v)", len(s), s)
	}
	if s[0] != "read:comments" || s[1] != "write:comments" {
		t.Errorf("order not preserved: %v", s)
	}
}

func TestPermissionSetHasAll(t *testing.T) {
	s := NewPermissionSet("read:comments", "read:profile")

	if !s.HasAll() {
		t.Error("empty requirement should be satisfied")
	}
	if !s.HasAll("read:comments") {
		t.Error("expected read:comments to be held")
	}
	if s.HasAll("read:comments", "write:comments") {
		t.Error("all-or-nothing: write:comments is missing")
	}
	missing := s.Missing("read:comments", "write:comments", "read:users")
	if len(missing) != 2 || missing[0] != "write:comments" || missing[1] != "read:users" {
		t.Errorf("Missing = %v", missing)
	}
}

func TestPermissionSetJSON(t *testing.T) {
	var nilSet PermissionSet
	b, err := json.Marshal(nilSet)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != "[]" {
		t.Errorf("nil set marshals to %s, want []", b)
	}

	var s PermissionSet
	if err := json.Unmarshal([]byte(`["a","b","a"," "]`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(s) != 2 {
		t.Errorf("unmarshal did not normalize: %v", s)
	}
}

func TestSystemPrincipal(t *testing.T) {
	p := SystemPrincipal()
	if p.ID != "system" || p.Role != "api" || p.Type != PrincipalAdmin {
		t.Errorf("unexpected system principal: %+v", p)
	}
	if !p.IsAPI() {
		t.Error("system principal should be API")
	}
	var nilP *Principal
	if nilP.IsAPI() {
		t.Error("nil principal is not API")
	}

	// A token-backed user whose role slug happens to read "api" is not key access.
	user := &Principal{ID: "u1", Role: APIRole, RoleID: "r1", Type: PrincipalUser}
	if user.IsAPI() {
		t.Error("role slug alone must not mark a principal as API")
	}
}

func TestNewPageMeta(t *testing.T) {
	tests := []struct {
		total int64
		limit int
		want  int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{5, 0, 0},
	}
	for _, tt := range tests {
		m := NewPageMeta(1, tt.limit, tt.total)
		if m.TotalPages != tt.want {
			t.Errorf("total=%d limit=%d: TotalPages = %d, want %d", tt.total, tt.limit, m.TotalPages, tt.want)
		}
	}
}

func TestEnvelopeOmitsEmpty(t *testing.T) {
	b, _ := json.Marshal(Envelope{Success: true, Message: "ok"})
	if string(b) != `{"success":true,"message":"ok"}` {
		t.Errorf("got %s", b)
	}
}

func TestPageOffset(t *testing.T) {
	if (Page{Page: 0, Limit: 10}).Offset() != 0 {
		t.Error("page 0 should clamp to offset 0")
	}
	if (Page{Page: 3, Limit: 20}).Offset() != 40 {
		t.Error("page 3 limit 20 should be offset 40")
	}
}

func TestValidAdminRole(t *testing.T) {
	for _, r := range []string{AdminRoleSuper, AdminRoleAdmin, AdminRoleModerator} {
		if !ValidAdminRole(r) {
			t.Errorf("%s should be valid", r)
		}
	}
	if ValidAdminRole("root") {
		t.Error("root should not be valid")
	}
}
