package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicore/booking-engine/internal/api"
	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/availability"
	"github.com/clinicore/booking-engine/internal/calendar"
	"github.com/clinicore/booking-engine/internal/config"
	"github.com/clinicore/booking-engine/internal/db"
	"github.com/clinicore/booking-engine/internal/idempotency"
	"github.com/clinicore/booking-engine/internal/observability/metrics"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/ratelimit"
	"github.com/clinicore/booking-engine/internal/reconciler"
	redisclient "github.com/clinicore/booking-engine/internal/redis"
	"github.com/clinicore/booking-engine/internal/schedule"
	"github.com/clinicore/booking-engine/internal/webhook"
	"github.com/clinicore/booking-engine/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).Named("api-server")
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)

	scheduleRepo := schedule.NewPgRepository(pgPool)
	outboxRepo := outbox.NewPgRepository(pgPool)
	apptRepo := appointment.NewPgRepository(pgPool, outboxRepo)
	idempStore := idempotency.NewPgStore(pgPool, cfg.IdempotencyTTL)

	bookingEngine := appointment.NewEngine(apptRepo, scheduleRepo, idempStore, engineMetrics, logger.Named("booking"))
	availEngine := availability.NewEngine(scheduleRepo, apptRepo, cfg.AvailabilityHorizonDays)
	calClient := calendar.NewHTTPClient(cfg.CalendarBaseURL, cfg.CalendarAPIKey, cfg.CalendarTimeout)
	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	// The webhook path only triggers a narrow per-doctor reconcile; the
	// periodic sweep runs in the sync-worker process.
	recon := reconciler.New(apptRepo, outboxRepo, scheduleRepo, logger.Named("reconciler")).
		WithFreshness(cfg.ReconcileFreshness)
	webhookHandler := webhook.NewHandler(cfg.CalendarWebhookSecret, scheduleRepo, recon, engineMetrics, logger.Named("webhook"))

	router := api.NewRouter(api.RouterConfig{
		Bookings:     bookingEngine,
		Availability: availEngine,
		Webhook:      webhookHandler,
		Tasks:        outboxRepo,
		Limiter:      limiter,
		PgPool:       pgPool,
		Redis:        rdb,
		Calendar:     calClient,
		Gatherer:     registry,
		Logger:       logger.Named("http"),
		Env:          cfg.Env,
		Version:      version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
}

var version = "dev"
