package middleware

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/rumtrack/internal/domain"
)

const AppKeyHeader = "X-RUM-Key"

// Auth is a middleware factory that returns a new authentication middleware.
// It checks for a valid app key in the X-RUM-Key header. Browsers cannot set
// headers on sendBeacon, so the key is also accepted as the "key" query
// parameter. A nil repo disables the check.
func Auth(repo domain.AppKeyRepository, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if repo == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			appKey := r.Header.Get(AppKeyHeader)
			if appKey == "" {
				appKey = r.URL.Query().Get("key")
			}
			if appKey == "" {
				logger.Warn("app key missing from request", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: app key required", http.StatusUnauthorized)
				return
			}

			isValid, err := repo.IsValid(r.Context(), appKey)
			if err != nil {
				logger.Error("failed to validate app key", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			if !isValid {
				logger.Warn("invalid app key provided", "remote_addr", r.RemoteAddr)
				http.Error(w, "Unauthorized: invalid app key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
