package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tenantly/tenantly/internal/server/middleware"
	"github.com/tenantly/tenantly/internal/service"
)

// UserHandler serves self-service profile endpoints and the administrative
// user listing.
type UserHandler struct {
	responder
	users *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users *service.UserService, opts Options) *UserHandler {
	return &UserHandler{responder: newResponder(opts), users: users}
}

// GetMe returns the caller's own profile.
// GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	u, err := h.users.Get(r.Context(), p.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Profile retrieved", u)
}

// UpdateMe changes the caller's email or name.
// PUT /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateProfileInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p := middleware.GetPrincipal(r.Context())
	u, err := h.users.UpdateProfile(r.Context(), p.ID, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Profile updated", u)
}

// ChangePassword replaces the caller's password.
// PUT /api/v1/users/me/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in service.ChangePasswordInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	p := middleware.GetPrincipal(r.Context())
	if err := h.users.ChangePassword(r.Context(), p.ID, in); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Password changed", nil)
}

// List returns one page of users.
// GET /api/v1/users?page=&limit=&search=&roleId=&isActive=&sort=
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	in := service.ListUsersInput{
		Page:     queryInt(r, "page", 1),
		Limit:    queryInt(r, "limit", 10),
		Search:   queryString(r, "search"),
		RoleID:   queryString(r, "roleId"),
		IsActive: queryOptionalBool(r, "isActive"),
		Sort:     queryString(r, "sort"),
	}
	list, err := h.users.List(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writePage(w, "Users retrieved", list.Users, list.Meta)
}

// Get returns one user.
// GET /api/v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "User retrieved", u)
}

// Update applies an administrative partial update.
// PUT /api/v1/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateUserInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.users.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "User updated", u)
}

// Toggle flips a user's active flag.
// PATCH /api/v1/users/{id}/toggle
func (h *UserHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.ToggleActive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "User deactivated"
	if u.IsActive {
		msg = "User activated"
	}
	writeData(w, http.StatusOK, msg, u)
}

// Delete removes a user.
// DELETE /api/v1/users/{id}
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "User deleted", nil)
}
