package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/tenantly/tenantly/internal/model"
)

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func testRoutes() []Route {
	return []Route{
		{Method: http.MethodPost, Path: "/api/v1/auth/login", Tag: "auth", Summary: "Log in", Request: loginBody{}, Response: model.Principal{}},
		{Method: http.MethodGet, Path: "/api/v1/users", Tag: "users", Summary: "List users", Security: Bearer, Response: []model.User{}, Paged: true, Query: []string{"page", "limit"}},
		{Method: http.MethodGet, Path: "/api/v1/users/{id}", Tag: "users", Summary: "Get user", Security: Bearer, Response: model.User{}},
		{Method: http.MethodDelete, Path: "/api/v1/users/{id}", Tag: "users", Summary: "Delete user", Security: Bearer},
		{Method: http.MethodGet, Path: "/api/v1/dashboard/stats", Tag: "dashboard", Summary: "Stats", Security: BearerOrKey, Response: model.DashboardStats{}},
		{Method: http.MethodGet, Path: "/api/v1/roles", Tag: "roles", Summary: "List roles", Security: OptionalBearer, Response: []model.Role{}},
	}
}

func generate(t *testing.T) *openapi3.T {
	t.Helper()
	doc, err := Generate(Info{Title: "Tenantly API", Version: "1.2.3", BaseURL: "http://localhost:8080"}, testRoutes())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return doc
}

// ─── Document structure ─────────────────────────────────────────────────────

func TestGenerate_Info(t *testing.T) {
	doc := generate(t)
	if doc.Info.Title != "Tenantly API" || doc.Info.Version != "1.2.3" {
		t.Errorf("Info = %+v", doc.Info)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080" {
		t.Errorf("Servers not set correctly")
	}
	var tags []string
	for _, tag := range doc.Tags {
		tags = append(tags, tag.Name)
	}
	want := []string{"auth", "dashboard", "roles", "users"}
	if len(tags) != len(want) {
		t.Fatalf("tags = %v, want %v", tags, want)
	}
	for i := range want {
		if tags[i] != want[i] {
			t.Errorf("tags = %v, want %v", tags, want)
		}
	}
}

func TestGenerate_SecuritySchemes(t *testing.T) {
	doc, err := Generate(Info{Title: "t", Version: "1", APIKeyHeader: "X-Tenant-Key"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	apiKey := doc.Components.SecuritySchemes["apiKey"]
	if apiKey == nil || apiKey.Value.Name != "X-Tenant-Key" || apiKey.Value.In != "header" {
		t.Errorf("apiKey scheme = %+v", apiKey)
	}
	bearer := doc.Components.SecuritySchemes["bearerAuth"]
	if bearer == nil || bearer.Value.Scheme != "bearer" {
		t.Errorf("bearerAuth scheme = %+v", bearer)
	}
}

func TestGenerate_Operations(t *testing.T) {
	doc := generate(t)

	item := doc.Paths.Find("/api/v1/users/{id}")
	if item == nil {
		t.Fatal("path /api/v1/users/{id} not found")
	}
	if item.Get == nil || item.Delete == nil {
		t.Fatal("expected GET and DELETE on /api/v1/users/{id}")
	}
	if len(item.Parameters) != 1 || item.Parameters[0].Value.Name != "id" || !item.Parameters[0].Value.Required {
		t.Errorf("path parameters = %+v", item.Parameters)
	}
	if item.Get.OperationID != "get_api_v1_users_id" {
		t.Errorf("OperationID = %q", item.Get.OperationID)
	}
	if item.Get.Responses.Value("404") == nil {
		t.Error("expected 404 response on parameterized path")
	}

	login := doc.Paths.Find("/api/v1/auth/login").Post
	if login.RequestBody == nil {
		t.Fatal("login has no request body")
	}
	if len(*login.Security) != 0 {
		t.Errorf("public route security = %v, want none", *login.Security)
	}
	if login.Responses.Value("401") != nil {
		t.Error("public route should not document 401")
	}

	list := doc.Paths.Find("/api/v1/users").Get
	if len(list.Parameters) != 2 {
		t.Errorf("query parameters = %d, want 2", len(list.Parameters))
	}
	if list.Responses.Value("401") == nil || list.Responses.Value("403") == nil {
		t.Error("protected route should document 401 and 403")
	}

	stats := doc.Paths.Find("/api/v1/dashboard/stats").Get
	if len(*stats.Security) != 2 {
		t.Errorf("bearer-or-key security = %v", *stats.Security)
	}
}

func TestGenerate_ComponentSchemas(t *testing.T) {
	doc := generate(t)

	for _, name := range []string{"Envelope", "ValidationEnvelope", "PageMeta", "User", "Role", "Principal", "DashboardStats", "loginBody"} {
		if doc.Components.Schemas[name] == nil {
			t.Errorf("component schema %q missing", name)
		}
	}

	user := doc.Components.Schemas["User"].Value
	if _, ok := user.Properties["passwordHash"]; ok {
		t.Error("User schema exposes the password hash")
	}
	if _, ok := user.Properties["email"]; !ok {
		t.Error("User schema missing email")
	}
}

func TestGenerate_LoadsAndValidates(t *testing.T) {
	doc := generate(t)

	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	loaded, err := openapi3.NewLoader().LoadFromData(raw)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := loaded.Validate(context.Background()); err != nil {
		t.Errorf("document does not validate: %v", err)
	}
}

func TestOperationID(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{"GET", "/api/v1/roles", "get_api_v1_roles"},
		{"PATCH", "/api/v1/roles/{id}/default", "patch_api_v1_roles_id_default"},
		{"GET", "/api/v1/dashboard/role-distribution", "get_api_v1_dashboard_role_distribution"},
	}
	for _, tt := range tests {
		if got := operationID(tt.method, tt.path); got != tt.want {
			t.Errorf("operationID(%s %s) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}
