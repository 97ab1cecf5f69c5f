// Command docfind runs the document search service: an HTTP API over a
// document library with orchestrated search runs, result caching, and
// usage analytics.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/calebmur/docfind/internal/analytics"
	"github.com/calebmur/docfind/internal/library"
	librarymem "github.com/calebmur/docfind/internal/library/memory"
	librarypg "github.com/calebmur/docfind/internal/library/postgres"
	"github.com/calebmur/docfind/internal/search/cache"
	"github.com/calebmur/docfind/internal/search/matcher"
	"github.com/calebmur/docfind/internal/server"
	"github.com/calebmur/docfind/pkg/config"
	"github.com/calebmur/docfind/pkg/health"
	"github.com/calebmur/docfind/pkg/kafka"
	"github.com/calebmur/docfind/pkg/logger"
	"github.com/calebmur/docfind/pkg/metrics"
	"github.com/calebmur/docfind/pkg/middleware"
	pkgpostgres "github.com/calebmur/docfind/pkg/postgres"
	pkgredis "github.com/calebmur/docfind/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting docfind", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()

	var store library.Store
	pgClient, err := pkgpostgres.New(cfg.Postgres)
	if err != nil {
		slog.Warn("postgres unavailable, using in-memory document store", "error", err)
		store = librarymem.New()
	} else {
		defer pgClient.Close()
		store = librarypg.New(pgClient)
		checker.Register("postgres", pgClient.Ping)
		slog.Info("document store ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}
	checker.Register("library", func(ctx context.Context) error {
		_, err := store.List(ctx)
		return err
	})

	var resultCache *cache.Cache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		resultCache = cache.New(redisClient, cfg.Redis.CacheTTL)
		checker.Register("redis", func(ctx context.Context) error {
			if err := redisClient.Ping(ctx); err != nil {
				return fmt.Errorf("%w: %v", health.ErrDegraded, err)
			}
			return nil
		})
		slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents)
	defer producer.Close()
	collector := analytics.NewCollector(producer, 100, 5*time.Second)
	collector.Start(ctx)
	defer collector.Close()

	aggregator := analytics.NewAggregator(nil)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SearchEvents, aggregator.Handler())
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("analytics consumer stopped", "error", err)
		}
	}()
	if pgClient != nil {
		snapshots := analytics.NewSnapshotStore(pgClient)
		snapshots.StartPeriodicSave(ctx, aggregator, 5*time.Minute)
	}

	var mx *metrics.Metrics
	if cfg.Metrics.Enabled {
		mx = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
		if docs, err := store.List(ctx); err == nil {
			mx.DocumentsTotal.Set(float64(len(docs)))
		}
	}

	m := matcher.New(matcher.Config{
		TermWeight:   cfg.Search.TermWeight,
		PhraseWeight: cfg.Search.PhraseWeight,
		Stemming:     cfg.Search.Stemming,
	})
	h := server.New(store, m, resultCache, collector, mx, cfg.Search)

	mux := http.NewServeMux()
	h.Routes(mux)
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if mx != nil {
		chain = middleware.Metrics(mx)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		rl := middleware.NewRateLimiter(cfg.Server.RateLimit, time.Minute)
		chain = rl.Middleware(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("docfind listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("docfind stopped")
}
