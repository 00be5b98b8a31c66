package middleware

import (
	"net/http"
	"time"

	"tidb-rest/internal/observability"
)

// MetricsMiddleware records request duration, status, and in-flight counts.
// The metrics receiver may be nil, in which case the middleware is a no-op.
func MetricsMiddleware(metrics *observability.RESTMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			metrics.IncrementActiveRequests(r.Context())
			defer metrics.DecrementActiveRequests(r.Context())

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			// Label by collection prefix, not the full path: record IDs
			// would blow up metric cardinality.
			metrics.RecordRequest(r.Context(), time.Since(start), wrapped.statusCode, r.Method, routeLabel(r.URL.Path))
		})
	}
}

func routeLabel(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	rest := path[1:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return path[:i+1]
		}
	}
	return path
}
