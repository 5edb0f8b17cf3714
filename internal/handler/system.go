package handler

import (
	"net/http"

	"github.com/tenantly/tenantly/internal/cache"
)

// SystemHandler exposes cache administration.
type SystemHandler struct {
	responder
	cache *cache.Store
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(c *cache.Store, opts Options) *SystemHandler {
	return &SystemHandler{responder: newResponder(opts), cache: c}
}

type cacheStatus struct {
	Backend    string `json:"backend"`
	Ready      bool   `json:"ready"`
	DefaultTTL int64  `json:"defaultTtlSeconds"`
}

// CacheStatus reports the cache backend and whether it is reachable.
// GET /api/v1/system/cache
func (h *SystemHandler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "Cache status", cacheStatus{
		Backend:    h.cache.BackendName(),
		Ready:      h.cache.IsReady(),
		DefaultTTL: int64(h.cache.DefaultTTL().Seconds()),
	})
}

// ClearCache drops every cache entry. It succeeds even when the cache is
// unavailable.
// DELETE /api/v1/system/cache
func (h *SystemHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear(r.Context())
	writeData(w, http.StatusOK, "Cache cleared", nil)
}
