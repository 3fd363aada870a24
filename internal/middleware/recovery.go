package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"parley/internal/domain"
	"parley/internal/httputil"
)

// Recovery middleware recovers from panics and returns the fail-closed
// taxonomy response. Stack traces go to the log, never to the client.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"stack", string(debug.Stack()),
					)

					httputil.RespondError(w, domain.NewError(domain.KindInternal, domain.SurfaceAPI))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
