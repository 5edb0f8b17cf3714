package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/tenantly/tenantly/internal/model"
)

// writeError writes a failure envelope. The handler package has its own
// writer; importing it here would create a cycle.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.Envelope{Success: false, Message: message}) //nolint:errcheck
}
