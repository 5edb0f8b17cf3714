package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tenantly/tenantly/internal/model"
	"github.com/tenantly/tenantly/internal/service"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Options configures behavior shared by every handler.
type Options struct {
	Logger *slog.Logger
	// Production hides internal error detail from 500 responses.
	Production bool
}

// responder renders errors through the single error boundary.
type responder struct {
	logger     *slog.Logger
	production bool
}

func newResponder(opts Options) responder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger, production: opts.Production}
}

// writeJSON serializes v as JSON and writes it to the response with the given
// HTTP status code. The Content-Type header is set to application/json.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData writes a success envelope.
func writeData(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, model.Envelope{Success: true, Message: message, Data: data})
}

// writePage writes a success envelope with pagination meta.
func writePage(w http.ResponseWriter, message string, data interface{}, meta *model.PageMeta) {
	writeJSON(w, http.StatusOK, model.Envelope{Success: true, Message: message, Data: data, Meta: meta})
}

// writeError writes a failure envelope.
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, model.Envelope{Success: false, Message: message})
}

// fail is the error boundary. Business errors carry their own status;
// anything else is a 500 whose detail is only exposed outside production.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	if se, ok := service.AsError(err); ok {
		if se.Kind == service.KindValidation {
			fields := se.Fields
			if fields == nil {
				fields = []model.FieldError{}
			}
			writeJSON(w, se.Status, model.ValidationEnvelope{
				Success: false,
				Message: se.Message,
				Errors:  fields,
			})
			return
		}
		writeError(w, se.Status, se.Message)
		return
	}

	rs.logger.ErrorContext(r.Context(), "unhandled error",
		"method", r.Method, "path", r.URL.Path, "error", err)
	env := model.Envelope{Success: false, Message: "Internal server error"}
	if !rs.production {
		env.Error = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, env)
}

// readJSON decodes the request body as JSON into v. The body is closed after
// decoding regardless of success or failure. Decoding problems are returned
// as a bad request business error.
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return service.BadRequest("Request body is required")
		case errors.As(err, &tooLarge):
			return service.BadRequest("Request body too large")
		}
		return service.BadRequest("Invalid request body: " + err.Error())
	}
	return nil
}

// queryInt extracts an integer query parameter, returning defaultVal if the
// parameter is missing or cannot be parsed.
func queryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// queryString extracts a string query parameter.
func queryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryBool extracts a boolean query parameter. Returns false if the parameter
// is missing or not "true"/"1".
func queryBool(r *http.Request, key string) bool {
	val := r.URL.Query().Get(key)
	return val == "true" || val == "1"
}

// queryOptionalBool is like queryBool but returns nil when the parameter is
// absent or unrecognized.
func queryOptionalBool(r *http.Request, key string) *bool {
	var b bool
	switch r.URL.Query().Get(key) {
	case "true", "1":
		b = true
	case "false", "0":
		b = false
	default:
		return nil
	}
	return &b
}
