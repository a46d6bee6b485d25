package httpx

import (
	"net/http"
	"slices"
	"strings"

	"github.com/aussiebroadwan/roomkey/pkg/jwtx"
	"github.com/aussiebroadwan/roomkey/pkg/slogx"
)

// AuthnMiddleware admits only fully authenticated sessions. Partial tokens
// issued while a second factor is pending get 401.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return authenticate(v, false)
}

// PendingAuthnMiddleware admits full sessions and pending-2FA sessions. It
// guards the 2FA setup, confirm and verify routes.
func PendingAuthnMiddleware(v jwtx.Verifier) Middleware {
	return authenticate(v, true)
}

func authenticate(v jwtx.Verifier, allowPartial bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

			claims, err := v.Verify(raw)
			if err != nil {
				log.Warn("jwt verify failed", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			if claims.IsPartial() {
				if !allowPartial || claims.Scope != jwtx.ScopeTwoFA {
					writeBearerError(w, "two-factor verification required")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(contextWithAuth(ctx, claims)))
		})
	}
}

// RequireAnyRole rejects callers whose role claim is not listed. It must run
// after one of the authn middlewares.
func RequireAnyRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ClaimsFromContext(r.Context())
			if !ok || !slices.Contains(roles, c.Role) {
				WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
