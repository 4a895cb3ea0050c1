package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/access"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/api"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/authcache"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/config"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/directory"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/observability"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/ratelimit"
	"github.com/Scalai-Solutions/scalai-tenant-manager-sub000/pkg/subaccounts"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout)

	// Postgres
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(initCtx); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}
	if err := directory.InitSchema(initCtx, db); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// One Redis client shared by the authorization cache and the rate limiter
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(initCtx).Err(); err != nil {
		// Survivable: the cache fails open and the limiter falls back
		log.Warnf("Redis unreachable at startup: %v", err)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	store := directory.NewPostgresStore(db)
	cache := authcache.NewCache(redisClient, authcache.Config{
		TTL:       cfg.Cache.TTL,
		OpTimeout: cfg.Cache.OpTimeout,
	}, logger, metrics)
	resolver := authcache.NewCachedResolver(cache, access.NewResolver(store), metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fallback := ratelimit.NewMemoryStore()
	fallback.StartSweep(ctx, time.Minute)
	limiterStore := ratelimit.NewHybridStore(
		ratelimit.NewRedisStore(redisClient, "ratelimit"), fallback, logger, metrics)
	limiter := ratelimit.NewLimiter(limiterStore, cfg.LimiterConfig(), logger, metrics)

	service := subaccounts.NewService(store, cache, logger)
	sweeper := subaccounts.NewSweeper(store, cache, logger)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start hygiene sweeper: %v", err)
	}
	defer sweeper.Stop()

	server := api.NewServer(api.Options{
		Service:  service,
		Resolver: resolver,
		Limiter:  limiter,
		Health:   observability.NewHealthChecker(db, redisClient),
		Logger:   logger,
		Registry: registry,
		Metrics:  metrics,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Infof("Starting tenant manager on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Info("Shutdown complete")
}
