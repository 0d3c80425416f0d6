package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payment-webhook-engine/config"
	httpHandler "payment-webhook-engine/internal/adapter/http/handler"
	pgStorage "payment-webhook-engine/internal/adapter/storage/postgres"
	redisStorage "payment-webhook-engine/internal/adapter/storage/redis"
	"payment-webhook-engine/internal/core/ports"
	"payment-webhook-engine/internal/service"
	"payment-webhook-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Payment Webhook Engine")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	appRepo := pgStorage.NewAppRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)

	// Initialize Redis stores
	enqueueGuard := redisStorage.NewEnqueueGuard(rdb)

	// Initialize core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Delivery engine and enqueue path
	httpClient := &http.Client{Timeout: cfg.Webhook.Timeout}
	deliverySvc := service.NewDeliveryService(eventRepo, httpClient, cfg.Webhook.Timeout, cfg.Webhook.ResponseBodyLimit, log)
	notifier := service.NewPaymentNotifier(
		appRepo,
		eventRepo,
		encSvc,
		sigSvc,
		enqueueGuard,
		deliverySvc,
		cfg.Webhook.MaxRetries,
		cfg.Webhook.EnqueueGuardTTL,
		log,
	)

	// Retry scheduler
	scheduler := service.NewRetryScheduler(eventRepo, deliverySvc, cfg.Webhook.SchedulerInterval, cfg.Webhook.BatchSize, log)
	scheduler.Start()

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Notifier:       notifier,
		EventRepo:      eventRepo,
		TokenSvc:       tokenSvc,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the scheduler after the HTTP surface so no new triggers arrive
	// while in-flight deliveries drain.
	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Scheduler forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
