package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/dental-clinic-engine/internal/config"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/logging"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
	redisclient "github.com/hackgods/dental-clinic-engine/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("reorder-worker", "dev", "info").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("reorder-worker", cfg.Env, cfg.LogLevel)
	logger.Info().Dur("interval", cfg.WorkerInterval).Msg("reorder-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Alerts reach dashboards only through the shared channel; without it
	// they are logged and dropped. The same channel carries the ledger's
	// threshold alerts back to the scanner so they are not repeated.
	hub := notify.NewBroadcaster(nil)
	defer hub.Close()
	alerts := hub.Subscribe(cfg.NotifierBuffer, notify.TypesFilter(notify.InventoryLowStock))
	defer hub.Unsubscribe(alerts)

	var notifier notify.Notifier = hub
	if cfg.EventsRedisChannel != "" {
		rdb := redisclient.Open(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		relay := notify.NewRedisRelay(rdb, cfg.EventsRedisChannel, hub, logger)
		go relay.Serve(rootCtx, relayRetry)
		select {
		case <-relay.Ready():
			logger.Info().Msg("subscribed to event channel")
		case <-time.After(5 * time.Second):
			logger.Warn().Msg("event channel not ready, scanning without ledger alerts")
		}
		notifier = relay
	}

	scanner := inventory.NewReorderScanner(inventory.NewService(pgPool, inventory.NewPgRepository()), notifier, logger)

	// Run once at startup
	runOnce(rootCtx, scanner, alerts, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reorder worker")
			return
		case ev := <-alerts.Events():
			scanner.Observe(ev)
		case <-ticker.C:
			runOnce(rootCtx, scanner, alerts, logger)
		}
	}
}

const relayRetry = 5 * time.Second

func runOnce(ctx context.Context, scanner *inventory.ReorderScanner, alerts *notify.Subscription, logger zerolog.Logger) {
	drain(scanner, alerts)

	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := scanner.Scan(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("reorder scan error")
		return
	}
	logger.Info().Int("announced", n).Dur("took", time.Since(start)).Msg("reorder scan complete")
}

// drain hands already delivered alerts to the scanner before it queries.
func drain(scanner *inventory.ReorderScanner, alerts *notify.Subscription) {
	for {
		select {
		case ev := <-alerts.Events():
			scanner.Observe(ev)
		default:
			return
		}
	}
}
