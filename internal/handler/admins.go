package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tenantly/tenantly/internal/server/middleware"
	"github.com/tenantly/tenantly/internal/service"
)

// AdminHandler manages admin accounts. Mounted behind SUPER_ADMIN checks.
type AdminHandler struct {
	responder
	admins *service.AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admins *service.AdminService, opts Options) *AdminHandler {
	return &AdminHandler{responder: newResponder(opts), admins: admins}
}

// List returns one page of admins.
// GET /api/v1/admins
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.admins.List(r.Context(), queryInt(r, "page", 1), queryInt(r, "limit", 10))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writePage(w, "Admins retrieved", list.Admins, list.Meta)
}

// Create adds an admin account.
// POST /api/v1/admins
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateAdminInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.admins.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "Admin created", a)
}

// Get returns one admin.
// GET /api/v1/admins/{id}
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.admins.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Admin retrieved", a)
}

// Update applies a partial update.
// PUT /api/v1/admins/{id}
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateAdminInput
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.admins.Update(r.Context(), actorID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Admin updated", a)
}

// Toggle flips an admin's active flag.
// PATCH /api/v1/admins/{id}/toggle
func (h *AdminHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	a, err := h.admins.ToggleActive(r.Context(), actorID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	msg := "Admin deactivated"
	if a.IsActive {
		msg = "Admin activated"
	}
	writeData(w, http.StatusOK, msg, a)
}

// Delete removes an admin.
// DELETE /api/v1/admins/{id}
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.admins.Delete(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Admin deleted", nil)
}

func actorID(r *http.Request) string {
	if p := middleware.GetPrincipal(r.Context()); p != nil {
		return p.ID
	}
	return ""
}
