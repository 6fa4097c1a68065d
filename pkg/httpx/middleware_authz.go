package httpx

import (
	"net/http"
	"slices"
)

// RequirePrivilege lets the request through only when the authenticated
// caller holds one of the given privileges. Requests without an identity get
// 401, callers with the wrong privilege 403.
func RequirePrivilege(allowed ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			if !slices.Contains(allowed, id.Privilege) {
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             "insufficient_privilege",
					"error_description": "caller lacks the required privilege",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
