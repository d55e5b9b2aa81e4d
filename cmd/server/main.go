package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"hookrelay/internal/api"
	"hookrelay/internal/api/handlers"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/engine/analytics"
	"hookrelay/internal/engine/events"
	"hookrelay/internal/engine/forwarding"
	"hookrelay/internal/engine/ingest"
	"hookrelay/internal/engine/notify"
	"hookrelay/internal/engine/webhooks"
	"hookrelay/internal/pkg/logger"
	"hookrelay/internal/pkg/telemetry"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/repositories"
	"hookrelay/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Init(cfg.Logging)

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("jwt.secret must be set")
	}

	shutdownTracing, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.Migrate(db, "up"); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply migrations")
	}

	// Repositories
	webhookRepo := repositories.NewWebhookRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	tunnelRepo := repositories.NewTunnelRepository(db)

	// Background work
	pool := workers.NewPool(cfg.Workers.PoolSize, cfg.Workers.QueueSize)
	notifier := notify.NewDispatcher(pool, cfg.Notifications.Timeout)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLog := audit.NewLogger(db)
	dispatcher := forwarding.NewDispatcher(cfg.Forwarding, tunnelRepo, eventRepo, webhookRepo, notifier)
	forwarder := forwarding.NewForwarder(dispatcher, eventRepo)
	webhookSvc := webhooks.NewService(webhookRepo, webhooks.NewCache(cfg.Cache.WebhookTTL))
	eventSvc := events.NewService(eventRepo, forwarder)
	statsSvc := analytics.NewService(analytics.NewRepository(db), eventRepo)

	pipeline := ingest.NewPipeline(cfg.Ingest, ingest.Deps{
		Webhooks:  webhookSvc,
		Events:    eventRepo,
		Counters:  webhookRepo,
		Forwarder: forwarder,
		Notifier:  notifier,
		Pool:      pool,
	})

	// Router
	deps := &api.Dependencies{
		MountPrefix:      cfg.Ingest.MountPrefix,
		IngestHandler:    handlers.NewIngestHandler(pipeline),
		WebhookHandler:   handlers.NewWebhookHandler(webhookSvc, auditLog, cfg.Ingest.MountPrefix),
		EventHandler:     handlers.NewEventHandler(webhookSvc, eventSvc, auditLog),
		AnalyticsHandler: handlers.NewAnalyticsHandler(webhookSvc, statsSvc),
		AuditHandler:     handlers.NewAuditHandler(auditLog),
		HealthHandler:    handlers.NewHealthHandler(db),
		MetricsHandler:   handlers.NewMetricsHandler(pool),
		AuthMiddleware:   middleware.NewAuthMiddleware(tokenSvc),
	}
	router := api.NewRouter(deps)

	handler := otelhttp.NewHandler(middleware.Recover(middleware.RequestLogger(router)), cfg.Telemetry.ServiceName)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", addr).Str("mount_prefix", cfg.Ingest.MountPrefix).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown did not complete")
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker pool did not drain")
	}
	auditLog.Flush()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tracer shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
