package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/lock"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/tracing"
)

const serviceName = "clinic-scheduling"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat, "api-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("api-server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, zlog *zap.Logger) error {
	zlog.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("store", cfg.StoreBackend),
		zap.String("lock", cfg.LockBackend))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(rootCtx, tracing.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: serviceName,
		Version:     cfg.Version,
		Endpoint:    cfg.OTelEndpoint,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			zlog.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector("clinic", reg)

	var (
		checks []api.Check
		store  appointment.Store
		sinks  events.Fanout
		source availability.Source
		pool   *pgxpool.Pool
	)

	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		pool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		if err == nil {
			err = db.Migrate(pgCtx, pool)
		}
		cancel()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		zlog.Info("connected to Postgres")

		pgStore := appointment.NewPgStore(pool)
		store = pgStore
		sinks = append(sinks, pgStore)
		source = availability.NewPgSource(pool)
		checks = append(checks, api.Check{Name: "postgres", Critical: true, Probe: pool.Ping})
	default:
		memStore := appointment.NewMemoryStore()
		store = memStore
		sinks = append(sinks, memStore)
		zlog.Warn("using in-memory appointment store; data is lost on restart")
	}
	if cfg.AvailabilitySrc != "" {
		source = availability.NewFileSource(cfg.AvailabilitySrc)
	}

	var locker appointment.Locker
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer closeRedis(rdb, zlog)
		zlog.Info("connected to Redis")

		locker = redisclient.NewDoctorLocker(rdb, cfg.LockTTL, cfg.LockWait)
		checks = append(checks, api.Check{Name: "redis", Critical: true, Probe: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	default:
		locker = lock.NewLocal()
	}

	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kafkaSink.Close(); err != nil {
				zlog.Warn("closing kafka writer", zap.Error(err))
			}
		}()
		sinks = append(sinks, kafkaSink)
		checks = append(checks, api.Check{Name: "kafka", Probe: events.ReadyCheck(cfg.KafkaBrokers)})
	}

	index := availability.NewIndex(loc)
	if err := index.Reload(rootCtx, source); err != nil {
		return fmt.Errorf("initial availability load: %w", err)
	}
	zlog.Info("availability loaded", zap.Int("doctors", len(index.Doctors())), zap.String("timezone", loc.String()))
	go refreshAvailability(rootCtx, index, source, cfg.AvailabilityTTL, zlog)

	engine := appointment.NewEngine(store, index, locker,
		appointment.WithLogger(zlog.Named("engine")),
		appointment.WithMetrics(collector),
		appointment.WithEventSink(sinks),
		appointment.WithStoreTimeout(cfg.StoreTimeout),
		appointment.WithPendingTTL(cfg.PendingTTL),
	)

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Scheduler: engine,
			Windows:   index,
			Logger:    zlog.Named("http"),
			Metrics:   collector,
			Gatherer:  reg,
			Checks:    checks,
			Env:       cfg.Env,
			Version:   cfg.Version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	zlog.Info("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func refreshAvailability(ctx context.Context, index *availability.Index, src availability.Source, every time.Duration, zlog *zap.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reloadCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := index.Reload(reloadCtx, src)
			cancel()
			if err != nil {
				zlog.Warn("availability reload failed, keeping previous data", zap.Error(err))
				continue
			}
			zlog.Debug("availability reloaded", zap.Int("doctors", len(index.Doctors())))
		}
	}
}

func closeRedis(rdb *redis.Client, zlog *zap.Logger) {
	if err := rdb.Close(); err != nil {
		zlog.Warn("error closing redis", zap.Error(err))
	}
}
