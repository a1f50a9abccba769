package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aotcache/internal/cachekey"
	"aotcache/internal/config"
	"aotcache/internal/handlers"
	"aotcache/internal/httpserver"
	"aotcache/internal/lookup"
	"aotcache/internal/metrics"
	"aotcache/internal/registry"
	"aotcache/internal/remote"
	"aotcache/internal/store"
	"aotcache/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("aotcached exited with error: %v", err)
	}
}

func run() error {
	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	cachekey.SetLogger(logger)

	// ----- Metrics -----
	metrics.Register()

	// ----- Config -----
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger.Info("loaded config",
		zap.String("port", cfg.Server.Port),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.Duration("cache_ttl", cfg.Cache.DefaultTTL.Duration),
		zap.String("mesh_descriptor", cfg.Mesh.Descriptor),
	)

	// ----- Redis client (only if needed) -----
	var redisClient *redis.Client
	if cfg.Cache.Backend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Addr,
		})

		// Fail fast if Redis is misconfigured
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("redis connection failed", zap.Error(err))
			return err
		}
		logger.Info("redis connection established",
			zap.String("addr", cfg.Redis.Addr),
		)
	}

	// ----- Artifact store -----
	artifacts, err := newStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	artifacts = store.NewLogging(artifacts, cfg.Cache.Backend)
	defer artifacts.Close()

	// ----- Registry + compile-side lookup -----
	reg, err := registry.New()
	if err != nil {
		return err
	}
	lc := lookup.New(artifacts, reg, cfg.Cache.DefaultTTL.Duration)

	// ----- Handlers -----
	h := handlers.New(artifacts, reg, lc, cfg.Cache.DefaultTTL.Duration,
		cachekey.StaticMesh(cfg.Mesh.Descriptor))

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, h, cfg.Server)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
		IdleTimeout:       cfg.Server.IdleTimeout.Duration,
	}

	logger.Info("starting cache daemon",
		zap.String("addr", srv.Addr),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	// Start server in background
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}

// newStore builds the configured artifact store. The remote backend is
// wired here rather than in the store factory so the store package does
// not have to depend on the HTTP client.
func newStore(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) (store.Store, error) {
	if cfg.Cache.Backend == "remote" {
		return remote.NewClient(remote.Config{
			BaseURL:         cfg.Remote.BaseURL,
			APIKey:          cfg.Remote.APIKey,
			UpstreamTimeout: cfg.Remote.Timeout.Duration,
			MaxRetries:      cfg.Remote.MaxRetries,
		}, logger)
	}
	return store.New(store.Options{
		Backend:     cfg.Cache.Backend,
		DefaultTTL:  cfg.Cache.DefaultTTL.Duration,
		Prefix:      cfg.Cache.Prefix,
		Dir:         cfg.Cache.Dir,
		MaxBytes:    cfg.Cache.MaxBytes,
		SweepPeriod: cfg.Cache.SweepPeriod.Duration,
	}, redisClient)
}
