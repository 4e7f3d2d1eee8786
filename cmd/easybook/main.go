package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/easybook-dev/easybook/internal/events"
	"github.com/easybook-dev/easybook/internal/gateway"
	"github.com/easybook-dev/easybook/internal/search"
	"github.com/easybook-dev/easybook/internal/stats"
	"github.com/easybook-dev/easybook/internal/store"
	"github.com/easybook-dev/easybook/pkg/config"
	"github.com/easybook-dev/easybook/pkg/health"
	"github.com/easybook-dev/easybook/pkg/kafka"
	"github.com/easybook-dev/easybook/pkg/logger"
	"github.com/easybook-dev/easybook/pkg/metrics"
	"github.com/easybook-dev/easybook/pkg/postgres"
	pkgredis "github.com/easybook-dev/easybook/pkg/redis"
	"github.com/easybook-dev/easybook/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/easybook.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting easybook core",
		"store_backend", cfg.Store.Backend,
		"gateways", len(cfg.Gateway.Hosts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var pgClient *postgres.Client
	needPostgres := cfg.Store.Backend == "postgres" || cfg.Gateway.HealthStore == "postgres"
	if needPostgres {
		// Postgres often comes up a few seconds after us in compose setups.
		err = resilience.Retry(ctx, "postgres connect", resilience.RetryConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
		}, func() error {
			pgClient, err = postgres.New(cfg.Postgres)
			return err
		})
		if err != nil {
			slog.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pgClient.Close()
	}

	recordStore, err := buildRecordStore(cfg, pgClient)
	if err != nil {
		slog.Error("failed to create record store", "error", err)
		os.Exit(1)
	}
	defer recordStore.Close()
	if err := recordStore.Init(ctx); err != nil {
		// Mirror of backend-down behaviour at runtime: start anyway, every
		// search fails with a retryable 503 until the next restart.
		slog.Warn("record store not ready, search unavailable", "error", err)
	}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, falling back to file snapshot store", "error", err)
		} else {
			defer redisClient.Close()
		}
	}

	collector := stats.NewCollector()
	snapshotStore := buildSnapshotStore(cfg, redisClient)
	if err := collector.Restore(ctx, snapshotStore); err != nil {
		slog.Warn("stats restore failed, starting empty", "error", err)
	}

	var wg sync.WaitGroup
	flusher := stats.NewFlusher(collector, snapshotStore, cfg.Stats.FlushInterval, m)
	wg.Add(1)
	go func() {
		defer wg.Done()
		flusher.Run(ctx)
	}()

	var exporter *events.Exporter
	var tracker search.EventTracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka)
		defer producer.Close()
		exporter = events.NewExporter(producer, cfg.Kafka.BufferSize)
		exporter.Start(ctx)
		tracker = exporter
		slog.Info("search event export enabled", "topic", cfg.Kafka.EventsTopic)
	}

	healthStore, err := buildHealthStore(ctx, cfg, pgClient)
	if err != nil {
		slog.Error("failed to create gateway health store", "error", err)
		os.Exit(1)
	}
	monitor := gateway.NewMonitor(
		cfg.Gateway.Hosts,
		healthStore,
		gateway.NewHTTPProber(cfg.Gateway.ProbeTimeout),
		cfg.Gateway.FailThreshold,
		m,
	)
	scheduler := gateway.NewScheduler(monitor, cfg.Gateway.CheckInterval)
	scheduler.Start(ctx)

	cache := search.NewCache(cfg.Cache.MaxEntries)
	if m != nil {
		cache.OnEvict(m.CacheEvictionsTotal.Inc)
	}
	orchestrator := search.NewOrchestrator(recordStore, cache, collector, monitor, tracker, m, search.Options{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		FetchWindow:     cfg.Search.FetchWindow,
		QueryTimeout:    cfg.Store.QueryTimeout,
	})
	_ = orchestrator // consumed by the embedding transport layer

	checker := health.NewChecker()
	checker.Register("record-store", func(ctx context.Context) health.ComponentHealth {
		count, err := recordStore.Count(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d records", count)}
	})
	if redisClient != nil {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if err := redisClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}
	if pgClient != nil {
		checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
			if err := pgClient.Ping(ctx); err != nil {
				return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	var srv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health/live", checker.LiveHandler())
		mux.HandleFunc("/health/ready", checker.ReadyHandler())
		srv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			slog.Info("metrics server listening", "port", cfg.Metrics.Port)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	slog.Info("easybook core ready")
	<-ctx.Done()
	slog.Info("shutting down")

	scheduler.Stop()
	if exporter != nil {
		exporter.Close()
	}
	wg.Wait() // flusher persists a final snapshot on the way out
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}
	slog.Info("shutdown complete")
}

func buildRecordStore(cfg *config.Config, pgClient *postgres.Client) (store.RecordStore, error) {
	switch cfg.Store.Backend {
	case "postgres":
		return store.NewPostgresStore(pgClient), nil
	default:
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	}
}

func buildSnapshotStore(cfg *config.Config, redisClient *pkgredis.Client) stats.SnapshotStore {
	if cfg.Stats.SnapshotStore == "redis" && redisClient != nil {
		return stats.RedisStore{Client: redisClient, Key: "easybook:stats"}
	}
	return stats.FileStore{Path: cfg.Stats.SnapshotPath}
}

func buildHealthStore(ctx context.Context, cfg *config.Config, pgClient *postgres.Client) (gateway.HealthStore, error) {
	if cfg.Gateway.HealthStore == "postgres" && pgClient != nil {
		return gateway.NewPostgresStore(ctx, pgClient)
	}
	return gateway.NewMemoryStore(), nil
}
