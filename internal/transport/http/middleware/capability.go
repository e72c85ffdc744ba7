package middleware

import (
	"net/http"

	"loophr/internal/domain/auth"
	"loophr/internal/transport/http/api"
)

// RequireCapability gates a route group on one flag of the resolved
// capability set. All role-to-permission logic stays in the auth package;
// this only checks the flag the selector picks.
func RequireCapability(selector func(auth.Capabilities) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
				return
			}
			if !selector(auth.ResolveCapabilities(user.Roles)) {
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
