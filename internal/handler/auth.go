package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tenantly/tenantly/internal/server/middleware"
	"github.com/tenantly/tenantly/internal/service"
)

// AuthHandler serves registration, login, token refresh and session key
// endpoints.
type AuthHandler struct {
	responder
	auth *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService, opts Options) *AuthHandler {
	return &AuthHandler{responder: newResponder(opts), auth: auth}
}

// Register creates a user account and returns a token pair.
// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.RegisterUser(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "User registered successfully", res)
}

// Login authenticates a user.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.LoginUser(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Login successful", res)
}

// AdminLogin authenticates an admin.
// POST /api/v1/auth/admin/login
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.LoginAdmin(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Login successful", res)
}

// Refresh exchanges a refresh token for a new pair.
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var in service.RefreshInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.auth.Refresh(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Token refreshed", res)
}

// Me describes the authenticated caller.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.Me(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Current principal", res)
}

// ListKeys lists the caller's session keys.
// GET /api/v1/auth/api-keys
func (h *AuthHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.auth.ListSessionKeys(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "API keys retrieved", keys)
}

// CreateKey mints a session key. The plaintext key is only returned here.
// POST /api/v1/auth/api-keys
func (h *AuthHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var in service.CreateKeyInput
	if r.ContentLength != 0 {
		if err := readJSON(w, r, &in); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	created, err := h.auth.CreateSessionKey(r.Context(), middleware.GetPrincipal(r.Context()), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "API key created. Store it now, it will not be shown again", created)
}

// RevokeKey deletes one of the caller's session keys.
// DELETE /api/v1/auth/api-keys/{keyId}
func (h *AuthHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "keyId")
	if err := h.auth.RevokeSessionKey(r.Context(), middleware.GetPrincipal(r.Context()), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "API key revoked", nil)
}
