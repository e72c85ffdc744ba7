package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"loophr/internal/platform/metrics"
)

// Metrics records request counts by route pattern once routing has
// resolved, so /users/{id} counts as one route.
func Metrics(registry *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if registry == nil {
				next.ServeHTTP(w, r)
				return
			}
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			registry.ObserveRequest(r.Method+" "+route, recorder.status)
		})
	}
}
