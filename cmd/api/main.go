package main

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/carelane/scheduling-platform/internal/api/router"
	"github.com/carelane/scheduling-platform/internal/availability"
	"github.com/carelane/scheduling-platform/internal/bookings"
	appconfig "github.com/carelane/scheduling-platform/internal/config"
	"github.com/carelane/scheduling-platform/internal/http/handlers"
	"github.com/carelane/scheduling-platform/internal/lock"
	"github.com/carelane/scheduling-platform/internal/notify"
	"github.com/carelane/scheduling-platform/internal/observability/metrics"
	"github.com/carelane/scheduling-platform/internal/recurrence"
	"github.com/carelane/scheduling-platform/internal/scheduler"
	"github.com/carelane/scheduling-platform/internal/slots"
	"github.com/carelane/scheduling-platform/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting scheduling-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database not reachable", "error", err)
		os.Exit(1)
	}

	redisClient := buildRedisClient(ctx, cfg, logger)

	registry := prometheus.NewRegistry()
	schedMetrics := metrics.NewSchedulingMetrics(registry)

	windowStore := availability.NewStore(pool)
	slotStore := slots.NewStore(pool)
	bookingStore := bookings.NewStore(pool)

	var notifier slots.CustomerNotifier
	if emailSender := buildEmailSender(ctx, cfg, logger); emailSender != nil {
		notifier = notify.NewService(emailSender, logger)
	}

	validator := availability.NewValidator(windowStore, nil)
	txManager := slots.NewPgTxManager(pool, slotStore, windowStore)
	cleanupCfg := slots.CleanupConfig{
		PreserveBookedSlots:     cfg.PreserveBookedSlots,
		NotifyAffectedCustomers: cfg.NotifyAffectedCustomers,
		FailFastNotifications:   cfg.FailFastNotifications,
	}
	lifecycle := slots.NewCleanupService(txManager, slotStore, windowStore, bookingStore,
		notifier, bookingStore, cleanupCfg, nil, schedMetrics, logger)

	var locker lock.Locker
	if rl := lock.NewRedisLocker(redisClient); rl != nil {
		locker = rl
	}

	schedulerSvc := scheduler.NewService(windowStore, slotStore, validator, lifecycle,
		recurrence.Weekly{}, locker, cfg.ProviderLockTTL, nil, schedMetrics, logger)

	health := handlers.NewHealthHandler(pool, redisPinger(redisClient), logger)

	r := router.New(&router.Config{
		Logger:          logger,
		Availability:    schedulerSvc,
		Health:          health,
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		RateLimitPerSec: cfg.RateLimitPerSec,
		RateLimitBurst:  cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildRedisClient returns a configured Redis client or nil when disabled.
func buildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		logger.Info("redis disabled, provider mutations run unserialized")
		return nil
	}
	options := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		options.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
	}
	return client
}

// buildEmailSender prefers SendGrid and falls back to SES; returns nil when
// neither is configured, which disables customer notifications.
func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.SendGridAPIKey != "" {
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	}
	if cfg.SESFromEmail != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config, email notifications disabled", "error", err)
			return nil
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	}
	logger.Info("no email sender configured, customer notifications disabled")
	return nil
}

type redisHealth struct{ client *redis.Client }

func (r redisHealth) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func redisPinger(client *redis.Client) handlers.Pinger {
	if client == nil {
		return nil
	}
	return redisHealth{client: client}
}
