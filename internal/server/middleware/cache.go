package middleware

import (
	"bytes"
	"net/http"
	"time"

	"github.com/tenantly/tenantly/internal/cache"
)

// ResponseCacheKey returns the key a cached response is stored under.
func ResponseCacheKey(namespace, requestURI string) string {
	return "cache:" + namespace + ":" + requestURI
}

type cachedResponse struct {
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// CacheResponse replays successful GET responses from the cache for ttl.
// Hits are marked "X-Cache: HIT", misses "X-Cache: MISS". Only 200 responses
// are stored.
func CacheResponse(store *cache.Store, namespace string, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := ResponseCacheKey(namespace, r.URL.RequestURI())
			var hit cachedResponse
			if store.GetJSON(r.Context(), key, &hit) {
				if hit.ContentType != "" {
					w.Header().Set("Content-Type", hit.ContentType)
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				w.Write(hit.Body) //nolint:errcheck
				return
			}

			w.Header().Set("X-Cache", "MISS")
			rec := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK {
				store.SetJSON(r.Context(), key, cachedResponse{
					ContentType: w.Header().Get("Content-Type"),
					Body:        rec.buf.Bytes(),
				}, ttl)
			}
		})
	}
}

// bufferingWriter passes the response through while keeping a copy of the
// body.
type bufferingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (w *bufferingWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *bufferingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bufferingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

