package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicore/booking-engine/internal/appointment"
	"github.com/clinicore/booking-engine/internal/calendar"
	"github.com/clinicore/booking-engine/internal/config"
	"github.com/clinicore/booking-engine/internal/db"
	"github.com/clinicore/booking-engine/internal/idempotency"
	"github.com/clinicore/booking-engine/internal/observability/metrics"
	"github.com/clinicore/booking-engine/internal/outbox"
	"github.com/clinicore/booking-engine/internal/reconciler"
	"github.com/clinicore/booking-engine/internal/schedule"
	"github.com/clinicore/booking-engine/internal/syncworker"
	"github.com/clinicore/booking-engine/pkg/logging"
)

// idempotencyPurgeInterval is housekeeping cadence, not correctness:
// expired tokens are also taken over lazily on reuse.
const idempotencyPurgeInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel).Named("sync-worker")
	logger.Info("sync-worker starting up",
		"env", cfg.Env, "sync_interval", cfg.SyncInterval, "reconcile_interval", cfg.ReconcileInterval)

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

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(registry)

	scheduleRepo := schedule.NewPgRepository(pgPool)
	outboxRepo := outbox.NewPgRepository(pgPool)
	apptRepo := appointment.NewPgRepository(pgPool, outboxRepo)
	idempStore := idempotency.NewPgStore(pgPool, cfg.IdempotencyTTL)
	calClient := calendar.NewHTTPClient(cfg.CalendarBaseURL, cfg.CalendarAPIKey, cfg.CalendarTimeout)

	worker := syncworker.NewWorker(outboxRepo, apptRepo, scheduleRepo, calClient, logger.Named("worker")).
		WithInterval(cfg.SyncInterval).
		WithBatchSize(cfg.SyncBatchSize).
		WithMaxAttempts(cfg.SyncMaxAttempts).
		WithBackoff(cfg.SyncBaseDelay, cfg.SyncMaxDelay).
		WithClaimTimeout(cfg.SyncClaimTimeout).
		WithMetrics(engineMetrics)

	recon := reconciler.New(apptRepo, outboxRepo, scheduleRepo, logger.Named("reconciler")).
		WithInterval(cfg.ReconcileInterval).
		WithFreshness(cfg.ReconcileFreshness)

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		worker.Run(rootCtx)
	}()

	go func() {
		defer wg.Done()
		recon.Run(rootCtx)
	}()

	go func() {
		defer wg.Done()
		purgeLoop(rootCtx, idempStore, logger)
	}()

	<-rootCtx.Done()
	logger.Info("shutdown signal received, stopping sync-worker")
	wg.Wait()
}

func purgeLoop(ctx context.Context, store *idempotency.PgStore, logger *logging.Logger) {
	ticker := time.NewTicker(idempotencyPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			purged, err := store.PurgeExpired(runCtx)
			cancel()
			if err != nil {
				logger.Error("idempotency purge error", "error", err)
				continue
			}
			if purged > 0 {
				logger.Info("purged expired idempotency tokens", "count", purged)
			}
		}
	}
}
