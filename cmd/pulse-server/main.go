// Package main initializes and runs the Pulse dashboard service.
//
// It is the composition root: configuration, database pool, entity
// registry, card engine, caches and HTTP servers are wired together here
// and torn down in reverse order on shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/inclue/pulse/internal/cache"
	"github.com/inclue/pulse/internal/cardengine"
	"github.com/inclue/pulse/internal/config"
	"github.com/inclue/pulse/internal/dashboard"
	"github.com/inclue/pulse/internal/database"
	"github.com/inclue/pulse/internal/entity"
	"github.com/inclue/pulse/internal/logger"
	"github.com/inclue/pulse/internal/observability"
	"github.com/inclue/pulse/internal/scope"
	"github.com/inclue/pulse/internal/store"
	"github.com/inclue/pulse/internal/webapi"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Fatal error: %v", err)
		os.Exit(1)
	}
}

// run executes the service lifecycle.
func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logg := logger.New(&cfg.App)
	slog.SetDefault(logg)
	cfg.LogConfig(logg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 2. Infrastructure (Postgres, Redis)
	// -------------------------------------------------------------------------
	dbPool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer dbPool.Close()

	checkers := []observability.Checker{database.NewHealthChecker(dbPool)}

	configCache, err := cache.NewConfigCache(cfg.Cache.Capacity, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("failed to build card-config cache: %w", err)
	}
	defer configCache.Close()

	// Redis is optional. Without it the service runs single-instance style:
	// no invalidation events, staleness bounded by the cache TTL.
	var publisher cache.Publisher = cache.NoopPublisher{}
	if cfg.Redis.IsConfigured() {
		redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()

		publisher = cache.NewRedisPublisher(redisClient)
		checkers = append(checkers, cache.NewHealthChecker(redisClient))

		subscriber := cache.NewSubscriber(redisClient, configCache, logg)
		go func() {
			if err := subscriber.Run(ctx); err != nil {
				logg.Error("invalidation subscriber stopped", slog.String("error", err.Error()))
			}
		}()
	} else {
		logg.Warn("redis not configured, card-config cache relies on TTL expiry only")
	}

	// -------------------------------------------------------------------------
	// 3. Domain Wiring (registry, engine, services)
	// -------------------------------------------------------------------------
	registry := entity.NewRegistry()
	registry.Register("participation", store.NewTableAccessor(dbPool, "participations",
		[]string{"id", "event_id", "participant_id", "facilitator_id", "session_type", "is_completed"}))
	registry.Register("event", store.NewTableAccessor(dbPool, "events",
		[]string{"id", "name", "status", "facilitator_id", "created_by"}))

	cardStore := store.NewPostgresStore(dbPool)
	engine := cardengine.New(registry, scope.NewResolver(registry, logg), logg)
	dash := dashboard.New(cardStore, engine, configCache, logg)

	api := webapi.NewAPI(cardStore, dash, publisher, cfg.Server.APIKeyHash)

	// -------------------------------------------------------------------------
	// 4. Servers
	// -------------------------------------------------------------------------
	obsServer := observability.NewServer(logg, &cfg.Observability, checkers...)
	obsServer.Start()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.Router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		logg.Info("starting api server", slog.String("addr", httpServer.Addr))

		var serveErr error
		if cfg.Server.TLSEnabled {
			serveErr = httpServer.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- fmt.Errorf("api server failed: %w", serveErr)
		}
	}()

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logg.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("api server shutdown failed", slog.String("error", err.Error()))
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		logg.Error("observability server shutdown failed", slog.String("error", err.Error()))
	}

	logg.Info("service exited")
	return nil
}
