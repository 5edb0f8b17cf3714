package handler

import (
	"net/http"

	"github.com/tenantly/tenantly/internal/service"
)

// DashboardHandler serves the aggregate admin views. Responses are also
// cached at the HTTP layer by the router.
type DashboardHandler struct {
	responder
	dash *service.DashboardService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(dash *service.DashboardService, opts Options) *DashboardHandler {
	return &DashboardHandler{responder: newResponder(opts), dash: dash}
}

// Stats returns account counts.
// GET /api/v1/dashboard/stats
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dash.Stats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Dashboard stats retrieved", stats)
}

// RoleDistribution returns user counts per role.
// GET /api/v1/dashboard/role-distribution
func (h *DashboardHandler) RoleDistribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.dash.RoleDistribution(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Role distribution retrieved", dist)
}

// RecentUsers returns the newest accounts.
// GET /api/v1/dashboard/recent-users
func (h *DashboardHandler) RecentUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.dash.RecentUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "Recent users retrieved", users)
}
