package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// MsgRateLimited is the body message of a 429 response.
const MsgRateLimited = "Too many requests, please try again later"

// RateLimit returns an HTTP middleware that limits requests per client IP to
// requests per window. Counters are process-local.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, MsgRateLimited)
		}),
	)
}
