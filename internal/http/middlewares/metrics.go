package middlewares

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/postmesh/internal/metrics"
)

// WithMetrics records request count, latency and in-flight requests. The path label is
// the matched chi route pattern so ids do not explode label cardinality.
func WithMetrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			method := strings.ToUpper(r.Method)
			start := time.Now()

			// The route is only known after chi matched it, so in-flight uses the raw
			// prefix bucket.
			inflight := metrics.HTTPInflight.WithLabelValues(method, routePrefix(r.URL.Path))
			inflight.Inc()
			defer inflight.Dec()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			path := routePattern(r)
			metrics.HTTPDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			metrics.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// routePrefix keeps the first two path segments: /api/posts/123 -> /api/posts.
func routePrefix(p string) string {
	parts := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}
