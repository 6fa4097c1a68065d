package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/keyhouse/pkg/jwtx"
	"github.com/aussiebroadwan/keyhouse/pkg/slogx"
)

// TokenDecoder verifies a bearer token. *jwtx.Codec implements it.
type TokenDecoder interface {
	Decode(token string) (jwtx.Payload, error)
}

// Authenticate requires a valid bearer token on every request and attaches
// the caller's Identity to the request context.
func Authenticate(dec TokenDecoder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			payload, err := dec.Decode(raw)
			if err != nil {
				slogx.FromContext(r.Context()).Warn("bearer token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx := WithIdentity(r.Context(), Identity{
				Subject:   payload.Subject,
				Privilege: payload.Privilege(),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Gate applies Authenticate to requests whose path starts with one of the
// protected prefixes and lets every other request through untouched.
func Gate(dec TokenDecoder, protected ...string) Middleware {
	authn := Authenticate(dec)
	return func(next http.Handler) http.Handler {
		guarded := authn(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range protected {
				if strings.HasPrefix(r.URL.Path, prefix) {
					guarded.ServeHTTP(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "unauthorized",
		"error_description": desc,
	})
}
