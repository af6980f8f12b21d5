package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/rumtrack/internal/adapter/api/handler"
	"github.com/V4T54L/rumtrack/internal/adapter/api/middleware"
)

// NewAdminRouter creates and configures the HTTP router for operator
// endpoints. metrics serves the Prometheus scrape endpoint.
func NewAdminRouter(admin *handler.AdminHandler, broker *handler.SSEBroker, metrics http.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", admin.HealthCheck)
	mux.Handle("GET /metrics", metrics)

	mux.HandleFunc("GET /admin/stats", admin.GetStats)
	mux.HandleFunc("GET /admin/config", admin.GetConfig)
	mux.HandleFunc("PATCH /admin/config", admin.PatchConfig)
	mux.HandleFunc("GET /admin/breadcrumbs", admin.GetBreadcrumbs)
	mux.HandleFunc("GET /admin/retry-queue", admin.GetRetryQueue)
	mux.Handle("GET /admin/stream", broker)

	return middleware.Logging(logger, "/health", "/metrics")(mux)
}
