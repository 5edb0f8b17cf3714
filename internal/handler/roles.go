package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/server/middleware"
	"github.com/tenantly/tenantly/internal/service"
)

// RoleHandler serves role management and the public role listing.
type RoleHandler struct {
	responder
	roles *service.RoleService
}

// NewRoleHandler creates a new RoleHandler.
func NewRoleHandler(roles *service.RoleService, opts Options) *RoleHandler {
	return &RoleHandler{responder: newResponder(opts), roles: roles}
}

// List returns roles. Anonymous and user callers only see active roles;
// admins see every role unless ?active=true is given.
// GET /api/v1/roles
func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if p := middleware.GetPrincipal(r.Context()); p != nil && p.Type == model.PrincipalAdmin {
		activeOnly = queryBool(r, "active")
	}
	roles, err := h.roles.List(r.Context(), activeOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Roles retrieved", roles)
}

// Permissions returns the permission catalog.
// GET /api/v1/roles/permissions
func (h *RoleHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "Permissions retrieved", h.roles.Permissions())
}

// Get returns one role.
// GET /api/v1/roles/{id}
func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Role retrieved", role)
}

// Create adds a role.
// POST /api/v1/roles
func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateRoleInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.roles.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Role created", role)
}

// Update applies a partial update.
// PUT /api/v1/roles/{id}
func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateRoleInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.roles.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Role updated", role)
}

// SetDefault makes the role the one assigned at registration.
// PATCH /api/v1/roles/{id}/default
func (h *RoleHandler) SetDefault(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.SetDefault(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Default role updated", role)
}

// Toggle flips a role's active flag.
// PATCH /api/v1/roles/{id}/toggle
func (h *RoleHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	role, err := h.roles.ToggleActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "Role deactivated"
	if role.IsActive {
		msg = "Role activated"
	}
	writeData(w, http.StatusOK, msg, role)
}

// Delete removes a role that no user references.
// DELETE /api/v1/roles/{id}
func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.roles.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Role deleted", nil)
}
