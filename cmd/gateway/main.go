package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/prism-gateway/internal/config"
	"github.com/af-corp/prism-gateway/internal/endpoint"
	"github.com/af-corp/prism-gateway/internal/filter"
	"github.com/af-corp/prism-gateway/internal/filter/policy"
	"github.com/af-corp/prism-gateway/internal/gateway"
	"github.com/af-corp/prism-gateway/internal/idempotency"
	"github.com/af-corp/prism-gateway/internal/router"
	"github.com/af-corp/prism-gateway/internal/router/adapters"
	"github.com/af-corp/prism-gateway/internal/store"
	"github.com/af-corp/prism-gateway/internal/telemetry"
	"github.com/af-corp/prism-gateway/internal/transport"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	cfg := loader.Config()

	// Connect to PostgreSQL when the operation log is enabled
	var dbPool *pgxpool.Pool
	if cfg.Database.Enabled {
		var err error
		dbPool, err = pgxpool.New(context.Background(), cfg.Database.DSN())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (operation log disabled until it recovers)", "error", err)
		} else {
			logger.Info("database connected")
		}
	}

	// Connect to Redis for duplicate detection
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (duplicate detection disabled)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	metrics := telemetry.NewMetrics()

	// Request router
	rt, err := router.New(router.Config{
		Priority:         cfg.Routing.EndpointPriority,
		ValidatePriority: cfg.Routing.ValidatePriority,
		DetectConflicts:  cfg.Routing.ValidateConflicts,
		ConflictBehavior: router.ConflictBehavior(cfg.Routing.ConflictBehavior),
		OnConflict: func(chosen endpoint.Endpoint) {
			metrics.RecordRoutingConflict(chosen.String())
		},
	})
	if err != nil {
		logger.Error("invalid routing configuration", "error", err)
		os.Exit(1)
	}

	// Transport to the backend
	client := transport.NewClient(transport.Config{
		BaseURL: cfg.Transport.BaseURL,
		APIKey:  cfg.Transport.APIKey,
		Timeout: cfg.Transport.Timeout,
		Retry: transport.RetryPolicy{
			MaxRetries:   cfg.Transport.MaxRetries,
			InitialDelay: time.Duration(cfg.Transport.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Transport.MaxDelayMs) * time.Millisecond,
		},
		IdempotencyBucketSeconds: cfg.Transport.IdempotencyBucketSeconds,
	})

	factory := adapters.NewFactory(adapters.Settings{
		MaxAudioFileBytes: cfg.Upload.MaxAudioFileBytes,
		MaxImageFileBytes: cfg.Upload.MaxImageFileBytes,
	})

	// Policy filter
	var chain *filter.Chain
	if cfg.Policy.Enabled {
		evaluator := policy.NewEvaluator(func() config.PolicyConfig {
			return loader.Config().Policy
		})
		if err := evaluator.Load(); err != nil {
			logger.Error("failed to load policies", "error", err)
			os.Exit(1)
		}
		loader.OnReload(func() {
			if err := evaluator.Load(); err != nil {
				logger.Error("failed to reload policies", "error", err)
			}
		})
		chain = filter.NewChain(evaluator)
	}

	health := transport.NewHealthTracker(cfg.Transport.FailureThreshold)
	replay := idempotency.NewReplayCache(rdb)
	operations := store.NewPGStore(dbPool)

	handler := gateway.NewHandler(rt, factory, client, health, replay, operations, chain, metrics,
		func() *config.Config { return loader.Config() })

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)

	r.Get("/prism/v1/health", handler.Health)
	r.Post("/v1/operations", handler.Operations)
	r.Get("/v1/operations", handler.OperationsByEndpoint)
	r.Get("/v1/operations/{id}", handler.OperationByID)

	// Metrics on their own port
	go func() {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics server starting", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Prism-Request-ID")
		if reqID == "" {
			reqID = generateRequestID()
		}
		// Handlers read the id back from the response header.
		w.Header().Set("X-Prism-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func generateRequestID() string {
	now := time.Now()
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", now.UnixMilli(), hex.EncodeToString(b))
}
