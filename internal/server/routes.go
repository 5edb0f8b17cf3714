package server

import (
	"net/http"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/openapi"
	"github.com/tenantly/tenantly/internal/service"
)

// Body types for routes whose handlers decode or encode ad hoc shapes.
type (
	CommentCheckRequest struct {
		Body string `json:"body"`
	}
	CommentCheckResult struct {
		Length int `json:"length"`
	}
	CommentList struct {
		Comments  []string         `json:"comments"`
		Principal *model.Principal `json:"principal"`
	}
	CacheStatus struct {
		Backend           string `json:"backend"`
		Ready             bool   `json:"ready"`
		DefaultTTLSeconds int64  `json:"defaultTtlSeconds"`
	}
)

// apiRoutes documents every route mounted under /api/v1. setupRouter and
// this table must agree; TestDocumentedRoutesAreMounted enforces it.
func apiRoutes() []openapi.Route {
	const (
		get   = http.MethodGet
		post  = http.MethodPost
		put   = http.MethodPut
		patch = http.MethodPatch
		del   = http.MethodDelete
	)
	return []openapi.Route{
		// Auth
		{Method: post, Path: "/api/v1/auth/register", Tag: "auth", Summary: "Register a user account", Security: openapi.Public, Request: service.RegisterInput{}, Response: service.AuthResult{}, Status: http.StatusCreated},
		{Method: post, Path: "/api/v1/auth/login", Tag: "auth", Summary: "Sign in as a user", Security: openapi.Public, Request: service.LoginInput{}, Response: service.AuthResult{}},
		{Method: post, Path: "/api/v1/auth/admin/login", Tag: "auth", Summary: "Sign in as an admin", Security: openapi.Public, Request: service.LoginInput{}, Response: service.AuthResult{}},
		{Method: post, Path: "/api/v1/auth/refresh", Tag: "auth", Summary: "Exchange a refresh token", Security: openapi.Public, Request: service.RefreshInput{}, Response: service.AuthResult{}},
		{Method: get, Path: "/api/v1/auth/me", Tag: "auth", Summary: "Describe the calling principal", Security: openapi.BearerOrKey, Response: service.MeResult{}},
		{Method: get, Path: "/api/v1/auth/api-keys", Tag: "auth", Summary: "List your API keys", Security: openapi.Bearer, Response: []model.APISession{}},
		{Method: post, Path: "/api/v1/auth/api-keys", Tag: "auth", Summary: "Create an API key", Security: openapi.Bearer, Request: service.CreateKeyInput{}, Response: service.CreatedKey{}, Status: http.StatusCreated},
		{Method: del, Path: "/api/v1/auth/api-keys/{keyId}", Tag: "auth", Summary: "Revoke an API key", Security: openapi.Bearer},

		// Users
		{Method: get, Path: "/api/v1/users/me", Tag: "users", Summary: "Get your profile", Security: openapi.Bearer, Response: model.User{}},
		{Method: put, Path: "/api/v1/users/me", Tag: "users", Summary: "Update your profile", Security: openapi.Bearer, Request: service.UpdateProfileInput{}, Response: model.User{}},
		{Method: put, Path: "/api/v1/users/me/password", Tag: "users", Summary: "Change your password", Security: openapi.Bearer, Request: service.ChangePasswordInput{}},
		{Method: get, Path: "/api/v1/users", Tag: "users", Summary: "List users", Security: openapi.Bearer, Response: []model.User{}, Paged: true, Query: []string{"page", "limit", "search", "roleId", "isActive", "sort"}},
		{Method: get, Path: "/api/v1/users/{id}", Tag: "users", Summary: "Get a user", Security: openapi.Bearer, Response: model.User{}},
		{Method: put, Path: "/api/v1/users/{id}", Tag: "users", Summary: "Update a user", Security: openapi.Bearer, Request: service.UpdateUserInput{}, Response: model.User{}},
		{Method: del, Path: "/api/v1/users/{id}", Tag: "users", Summary: "Delete a user", Security: openapi.Bearer},
		{Method: patch, Path: "/api/v1/users/{id}/toggle", Tag: "users", Summary: "Activate or deactivate a user", Security: openapi.Bearer, Response: model.User{}},

		// Admins
		{Method: get, Path: "/api/v1/admins", Tag: "admins", Summary: "List admins", Security: openapi.Bearer, Response: []model.Admin{}, Paged: true, Query: []string{"page", "limit"}},
		{Method: post, Path: "/api/v1/admins", Tag: "admins", Summary: "Create an admin", Security: openapi.Bearer, Request: service.CreateAdminInput{}, Response: model.Admin{}, Status: http.StatusCreated},
		{Method: get, Path: "/api/v1/admins/{id}", Tag: "admins", Summary: "Get an admin", Security: openapi.Bearer, Response: model.Admin{}},
		{Method: put, Path: "/api/v1/admins/{id}", Tag: "admins", Summary: "Update an admin", Security: openapi.Bearer, Request: service.UpdateAdminInput{}, Response: model.Admin{}},
		{Method: del, Path: "/api/v1/admins/{id}", Tag: "admins", Summary: "Delete an admin", Security: openapi.Bearer},
		{Method: patch, Path: "/api/v1/admins/{id}/toggle", Tag: "admins", Summary: "Activate or deactivate an admin", Security: openapi.Bearer, Response: model.Admin{}},

		// Roles
		{Method: get, Path: "/api/v1/roles", Tag: "roles", Summary: "List roles", Security: openapi.OptionalBearer, Response: []model.Role{}, Query: []string{"active"}},
		{Method: get, Path: "/api/v1/roles/permissions", Tag: "roles", Summary: "List known permissions", Security: openapi.OptionalBearer, Response: []string{}},
		{Method: get, Path: "/api/v1/roles/{id}", Tag: "roles", Summary: "Get a role", Security: openapi.OptionalBearer, Response: model.Role{}},
		{Method: post, Path: "/api/v1/roles", Tag: "roles", Summary: "Create a role", Security: openapi.Bearer, Request: service.CreateRoleInput{}, Response: model.Role{}, Status: http.StatusCreated},
		{Method: put, Path: "/api/v1/roles/{id}", Tag: "roles", Summary: "Update a role", Security: openapi.Bearer, Request: service.UpdateRoleInput{}, Response: model.Role{}},
		{Method: del, Path: "/api/v1/roles/{id}", Tag: "roles", Summary: "Delete a role", Security: openapi.Bearer},
		{Method: patch, Path: "/api/v1/roles/{id}/default", Tag: "roles", Summary: "Make a role the default", Security: openapi.Bearer, Response: model.Role{}},
		{Method: patch, Path: "/api/v1/roles/{id}/toggle", Tag: "roles", Summary: "Activate or deactivate a role", Security: openapi.Bearer, Response: model.Role{}},

		// Dashboard
		{Method: get, Path: "/api/v1/dashboard/stats", Tag: "dashboard", Summary: "Account statistics", Security: openapi.BearerOrKey, Response: model.DashboardStats{}},
		{Method: get, Path: "/api/v1/dashboard/role-distribution", Tag: "dashboard", Summary: "Users per role", Security: openapi.BearerOrKey, Response: []model.RoleCount{}},
		{Method: get, Path: "/api/v1/dashboard/recent-users", Tag: "dashboard", Summary: "Most recently registered users", Security: openapi.BearerOrKey, Response: []model.User{}},

		// Comments
		{Method: get, Path: "/api/v1/comments", Tag: "comments", Summary: "List comments", Security: openapi.BearerOrKey, Response: CommentList{}},
		{Method: post, Path: "/api/v1/comments/check", Tag: "comments", Summary: "Check a comment can be posted", Security: openapi.BearerOrKey, Request: CommentCheckRequest{}, Response: CommentCheckResult{}},

		// System
		{Method: get, Path: "/api/v1/system/cache", Tag: "system", Summary: "Cache status", Security: openapi.Bearer, Response: CacheStatus{}},
		{Method: del, Path: "/api/v1/system/cache", Tag: "system", Summary: "Clear the cache", Security: openapi.Bearer},
	}
}
