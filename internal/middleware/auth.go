package middleware

import (
	"net/http"
	"strings"

	"parley/internal/auth"
	"parley/internal/domain"
	"parley/internal/httputil"
)

// AuthMiddleware verifies a Bearer token when one is present and stores the
// principal id in the request context. A request without a token proceeds as
// the anonymous principal; per-action access decisions belong to the
// authorization guard, not this middleware. A token that is present but
// invalid is rejected outright.
func AuthMiddleware(verifier auth.JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if token == header || token == "" {
				httputil.RespondError(w, domain.NewError(domain.KindUnauthorized, domain.SurfaceAuth))
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				httputil.RespondError(w, domain.NewError(domain.KindUnauthorized, domain.SurfaceAuth))
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, claims.GetUserID()))
		})
	}
}
