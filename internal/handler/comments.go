package handler

import (
	"net/http"
	"strings"

	"github.com/tenantly/tenantly/internal/server/middleware"
	"github.com/tenantly/tenantly/internal/service"
)

// CommentHandler exposes permission-gated probe endpoints. The router
// requires read:comments for List and write:comments for Check; the
// handlers themselves only echo what they were given.
type CommentHandler struct {
	responder
}

// NewCommentHandler creates a new CommentHandler.
func NewCommentHandler(opts Options) *CommentHandler {
	return &CommentHandler{responder: newResponder(opts)}
}

type commentCheck struct {
	Body string `json:"body"`
}

// List confirms read access.
// GET /api/v1/comments
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, "Comments retrieved", map[string]interface{}{
		"comments":  []interface{}{},
		"principal": middleware.GetPrincipal(r.Context()),
	})
}

// Check confirms write access and validates a comment body.
// POST /api/v1/comments/check
func (h *CommentHandler) Check(w http.ResponseWriter, r *http.Request) {
	var in commentCheck
	if err := readJSON(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		h.fail(w, r, service.BadRequest("Comment body is required"))
		return
	}
	writeData(w, http.StatusOK, "Comment accepted", map[string]interface{}{
		"length": len(body),
	})
}
