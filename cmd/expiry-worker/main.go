package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/events"
	"github.com/hackgods/clinic-scheduling/internal/lock"
	"github.com/hackgods/clinic-scheduling/internal/logger"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat, "expiry-worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zlog.Sync() }()

	if cfg.StoreBackend != config.StorePostgres {
		zlog.Fatal("expiry worker needs the postgres store", zap.String("store", cfg.StoreBackend))
	}

	zlog.Info("expiry-worker starting up", zap.String("env", cfg.Env), zap.Duration("interval", cfg.WorkerInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		zlog.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	zlog.Info("connected to Postgres")

	loc, err := cfg.Location()
	if err != nil {
		zlog.Fatal("clinic timezone", zap.Error(err))
	}

	store := appointment.NewPgStore(pgPool)
	sinks := events.Fanout{store}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = kafkaSink.Close() }()
		sinks = append(sinks, kafkaSink)
	}

	// expiry never consults availability or takes doctor locks
	engine := appointment.NewEngine(store, availability.NewIndex(loc), lock.NewLocal(),
		appointment.WithLogger(zlog.Named("engine")),
		appointment.WithMetrics(metrics.NewCollector("clinic_worker", prometheus.NewRegistry())),
		appointment.WithEventSink(sinks),
		appointment.WithStoreTimeout(cfg.StoreTimeout),
	)

	// Run once at startup
	runOnce(rootCtx, engine, zlog)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			zlog.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, engine, zlog)
		}
	}
}

func runOnce(ctx context.Context, engine *appointment.Engine, zlog *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := engine.ExpireStalePending(runCtx)
	if err != nil {
		zlog.Error("expiry run error", zap.Error(err), zap.Int("expired", n))
		return
	}
	zlog.Info("expiry run complete", zap.Int("expired", n), zap.Duration("took", time.Since(start)))
}
