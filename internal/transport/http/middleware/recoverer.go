package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"loophr/internal/platform/metrics"
	"loophr/internal/transport/http/api"
)

func Recoverer(registry *metrics.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if registry != nil {
						registry.PanicRecovered()
					}
					slog.Error("panic recovered",
						"panic", rec,
						"path", r.URL.Path,
						"requestId", GetRequestID(r.Context()),
						"stack", string(debug.Stack()),
					)
					api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", GetRequestID(r.Context()))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
