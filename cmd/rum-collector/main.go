package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/rumtrack/internal/adapter/api"
	"github.com/V4T54L/rumtrack/internal/adapter/api/handler"
	"github.com/V4T54L/rumtrack/internal/adapter/metrics"
	"github.com/V4T54L/rumtrack/internal/adapter/repository/memory"
	"github.com/V4T54L/rumtrack/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/rumtrack/internal/adapter/repository/redis"
	"github.com/V4T54L/rumtrack/internal/app"
	"github.com/V4T54L/rumtrack/internal/domain"
	"github.com/V4T54L/rumtrack/internal/pkg/config"
	"github.com/V4T54L/rumtrack/internal/pkg/logger"

	_ "github.com/lib/pq" // Keep for postgres driver
)

// sessionSource is a store that can hand out per-client views.
type sessionSource interface {
	domain.SessionStore
	handler.SessionSource
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewRUMMetrics(nil)

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Session Storage ---
	var sessions sessionSource = memory.NewSessionStore()
	if cfg.Storage.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		store := redisrepo.NewSessionStore(redisClient, cfg.Storage.SessionTTL, logger)
		if err := store.Ping(ctx); err != nil {
			logger.Warn("could not connect to redis, session ids will not survive restarts", "error", err)
		}
		sessions = store
	}

	// --- App Keys ---
	var appKeys domain.AppKeyRepository
	if cfg.Storage.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		repo := postgres.NewAppKeyRepository(db, logger, cfg.Storage.AppKeyCacheTTL, m)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to apply app key schema", "error", err)
			os.Exit(1)
		}
		appKeys = repo
	} else {
		logger.Warn("POSTGRES_URL not set, beacons are accepted without an app key")
	}

	// --- Pipeline ---
	pipeline := app.New(cfg, logger, app.Options{Sessions: sessions, Metrics: m})
	if err := pipeline.Start(ctx); err != nil {
		logger.Error("failed to initialize RUM pipeline", "error", err)
		os.Exit(1)
	}

	sseBroker := handler.NewSSEBroker(ctx, logger, pipeline.Snapshot)

	// --- Start Admin and Metrics Server ---
	adminHandler := handler.NewAdminHandler(pipeline.Delivery, pipeline.Manager, logger)
	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: api.NewAdminRouter(adminHandler, sseBroker, promhttp.Handler(), logger),
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Initialize Collect Server ---
	collectHandler := handler.NewCollectHandler(pipeline.Orchestrator, sessions, logger, cfg.MaxEventSize, m, sseBroker)
	collectServer := &http.Server{
		Addr:         cfg.CollectorAddr,
		Handler:      api.NewRouter(logger, appKeys, collectHandler),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("starting collect server", "addr", collectServer.Addr)
		if err := collectServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("collect server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := collectServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("collect server shutdown failed", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}

	// Flushes in-flight forwards before the transport closes.
	pipeline.Manager.Destroy()

	logger.Info("servers shut down gracefully")
}
