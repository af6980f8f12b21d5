package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/rumtrack/internal/adapter/api/handler"
	"github.com/V4T54L/rumtrack/internal/adapter/api/middleware"
	"github.com/V4T54L/rumtrack/internal/domain"
)

// NewRouter creates and configures the HTTP router browsers send beacons to.
// appKeys may be nil to accept unauthenticated beacons.
func NewRouter(logger *slog.Logger, appKeys domain.AppKeyRepository, collect *handler.CollectHandler) http.Handler {
	mux := http.NewServeMux()

	authMiddleware := middleware.Auth(appKeys, logger)
	mux.Handle("POST /collect", authMiddleware(collect))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return middleware.Logging(logger, "/health")(mux)
}
