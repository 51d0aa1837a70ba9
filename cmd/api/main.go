package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acquiring-gateway/config"
	acquirerClient "acquiring-gateway/internal/adapter/acquirer"
	httpHandler "acquiring-gateway/internal/adapter/http/handler"
	"acquiring-gateway/internal/adapter/metrics"
	pgStorage "acquiring-gateway/internal/adapter/storage/postgres"
	redisStorage "acquiring-gateway/internal/adapter/storage/redis"
	"acquiring-gateway/internal/core/ports"
	"acquiring-gateway/internal/service"
	"acquiring-gateway/pkg/logger"

	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Acquiring Gateway")

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

	// Repositories
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	teamRepo := pgStorage.NewTeamRepo(pool)
	webhookRepo := pgStorage.NewWebhookRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)

	// Metrics sink
	promRegistry := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(promRegistry)

	// Core services
	tokenVerifier := service.NewSHA256TokenService()
	teamSvc := service.NewTeamService(teamRepo, logger.Component(log, "teams"))
	limiter := service.NewRateLimitService(cfg.Rate.Policies)
	lockSvc := redisStorage.NewLockStore(rdb, cfg.Lock.RetryDelay, cfg.Lock.MaxRetries)

	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}

	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authSvc := service.NewAdminAuthService(cfg.Admin, hashSvc, tokenSvc, logger.Component(log, "auth"))
	auditSvc := service.NewAuditService(auditRepo, logger.Component(log, "audit"))

	// Acquirer adapter
	acq := acquirerClient.NewClient(cfg.Acquirer, logger.Component(log, "acquirer"))

	// Webhook notifier
	webhookClient := resty.New().SetTimeout(cfg.Webhook.Timeout)
	webhookSvc := service.NewWebhookService(
		cfg.Webhook, webhookRepo, teamSvc, tokenVerifier,
		webhookClient, sink, logger.Component(log, "webhooks"),
	)
	webhookSvc.Start()
	defer webhookSvc.Stop()

	// Lifecycle coordinator
	coordinator := service.NewPaymentCoordinator(
		paymentRepo, teamSvc, acq, lockSvc, limiter, webhookSvc, encSvc, sink,
		service.CoordinatorConfig{
			LockTimeout:     cfg.Lock.DefaultTimeout,
			LeaseDuration:   cfg.Lock.LeaseDuration,
			PaymentTTL:      cfg.Limits.PaymentTTL,
			MinAmount:       cfg.Limits.MinAmount,
			MaxAmount:       cfg.Limits.MaxAmount,
			BaseURL:         cfg.Server.BaseURL,
			AcquirerRetries: cfg.Acquirer.MaxRetries,
		},
		logger.Component(log, "coordinator"),
	)

	// Payment work queue + deadline sweeper
	queue := service.NewQueueService(cfg.Queue, logger.Component(log, "queue"))
	queue.Start()
	defer queue.Stop()

	sweeper := time.NewTicker(time.Minute)
	defer sweeper.Stop()
	go func() {
		for range sweeper.C {
			err := queue.Enqueue(ports.Job{
				ID:         fmt.Sprintf("expiry-sweep-%d", time.Now().Unix()),
				Kind:       "expiry_sweep",
				Idempotent: true,
				Run:        coordinator.ExpireOverdue,
			})
			if err != nil {
				log.Warn().Err(err).Msg("expiry sweep enqueue rejected")
			}
		}
	}()

	// Deadlock detector over the lock table
	detector := service.NewDeadlockService(cfg.Deadlock, lockSvc, sink, logger.Component(log, "deadlock"))
	detector.Start()
	defer detector.Stop()

	// Health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Coordinator:    coordinator,
		Teams:          teamSvc,
		TokenVerifier:  tokenVerifier,
		RateLimiter:    limiter,
		AdminAuthSvc:   authSvc,
		TokenSvc:       tokenSvc,
		Payments:       paymentRepo,
		AuditSvc:       auditSvc,
		Metrics:        sink,
		PromGatherer:   promRegistry,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

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

	log.Info().Msg("Server exited")
}
