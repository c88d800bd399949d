package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/dental-clinic-engine/internal/api"
	"github.com/hackgods/dental-clinic-engine/internal/appointment"
	"github.com/hackgods/dental-clinic-engine/internal/config"
	"github.com/hackgods/dental-clinic-engine/internal/coordinator"
	"github.com/hackgods/dental-clinic-engine/internal/db"
	"github.com/hackgods/dental-clinic-engine/internal/inventory"
	"github.com/hackgods/dental-clinic-engine/internal/logging"
	"github.com/hackgods/dental-clinic-engine/internal/metrics"
	"github.com/hackgods/dental-clinic-engine/internal/notify"
	redisclient "github.com/hackgods/dental-clinic-engine/internal/redis"
	"github.com/hackgods/dental-clinic-engine/internal/slots"
	"github.com/hackgods/dental-clinic-engine/internal/treatment"
)

var version = "dev"

const relayRetry = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("api-server", "dev", "info").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New("api-server", cfg.Env, cfg.LogLevel)
	logger.Info().Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		v, err := db.Migrate(cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration error")
		}
		logger.Info().Uint("schema_version", v).Msg("migrations applied")
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PostgresMaxConn})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis. Bookings fall back to Postgres advisory locks while it is down.
	rdb := redisclient.Open(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	redisCtx, cancelRedis := context.WithTimeout(rootCtx, 5*time.Second)
	if err := redisclient.Ping(redisCtx, rdb); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable, continuing without it")
	} else {
		logger.Info().Msg("connected to Redis")
	}
	cancelRedis()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := notify.NewBroadcaster(m)
	defer hub.Close()
	var notifier notify.Notifier = hub
	if cfg.EventsRedisChannel != "" {
		relay := notify.NewRedisRelay(rdb, cfg.EventsRedisChannel, hub, logger)
		go relay.Serve(rootCtx, relayRetry)
		notifier = relay
	}

	catalog, err := loadCatalog(cfg.TreatmentCatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("treatment catalog error")
	}
	allocator, err := newAllocator(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("slot allocator config error")
	}
	scopes, err := appointment.ParseScopeKinds(cfg.ConflictScopes)
	if err != nil {
		logger.Fatal().Err(err).Msg("conflict scope config error")
	}

	appointmentRepo := appointment.NewPgRepository()
	treatmentRepo := treatment.NewPgRepository()
	inventoryRepo := inventory.NewPgRepository()

	ledger := inventory.NewLedger(pgPool, inventoryRepo, notifier,
		inventory.WithMetrics(m),
		inventory.WithLogger(logger),
		inventory.WithTxTimeout(cfg.TxTimeout),
	)
	coord := coordinator.New(pgPool, appointmentRepo, treatment.NewMachine(treatmentRepo, catalog), ledger, notifier,
		coordinator.WithLocker(redisclient.NewResourceLocker(rdb, cfg.LockTTL, cfg.LockWait, redisclient.WithLockLogger(logger))),
		coordinator.WithScopes(scopes...),
		coordinator.WithMetrics(m),
		coordinator.WithLogger(logger),
		coordinator.WithTxTimeout(cfg.TxTimeout),
	)

	router := api.NewRouter(api.RouterConfig{
		Coordinator:  coord,
		Appointments: appointment.NewService(pgPool, appointmentRepo, allocator),
		Treatments:   treatment.NewService(pgPool, treatmentRepo),
		Inventory:    inventory.NewService(pgPool, inventoryRepo),
		Ledger:       ledger,
		Catalog:      catalog,
		Location:     cfg.Location(),
		Health: api.NewHealthHandler(pgPool, api.PingFunc(func(ctx context.Context) error {
			return redisclient.Ping(ctx, rdb)
		}), cfg.Env, version),
		Events:  notify.NewWebSocketHandler(hub, cfg.NotifierBuffer, logger),
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func loadCatalog(path string) (*treatment.Catalog, error) {
	if path == "" {
		return treatment.DefaultCatalog(), nil
	}
	return treatment.LoadCatalog(path)
}

func newAllocator(cfg config.Config) (*slots.Allocator, error) {
	open, err := slots.ParseClock(cfg.ClinicOpen)
	if err != nil {
		return nil, err
	}
	closeAt, err := slots.ParseClock(cfg.ClinicClose)
	if err != nil {
		return nil, err
	}
	return slots.NewAllocator(slots.Config{
		Granularity: cfg.SlotGranularity,
		Open:        open,
		Close:       closeAt,
		Location:    cfg.Location(),
	})
}
