// Package main is the entry point for the back-office identifier API server.
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

	"backoffice/internal/config"
	"backoffice/internal/infrastructure/cache"
	v1 "backoffice/internal/infrastructure/http/v1"
	"backoffice/internal/infrastructure/http/v1/middleware"
	"backoffice/internal/infrastructure/objectstore"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.ToLoggerConfig())
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx := logger.WithLogger(context.Background(), log)
	log.Infow("starting backoffice server", "strategy", cfg.Labels.Strategy, "storage", cfg.Storage.Driver)

	// --- Database ---
	pool, err := postgres.NewPool(ctx, poolConfig(cfg.Database))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	postgres.LogPoolStats(ctx, pool)

	txOpts := postgres.DefaultTxOptions()
	if cfg.Database.StatementTimeout > 0 {
		txOpts.StatementTimeout = cfg.Database.StatementTimeout
	}
	txManager := postgres.NewTxManager(pool, txOpts)

	// --- Object store ---
	artifacts, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		log.Fatalw("failed to initialize object store", "error", err)
	}

	// --- Services ---
	svc, err := buildServices(txManager, artifacts, cfg)
	if err != nil {
		log.Fatalw("failed to build services", "error", err)
	}

	productListener := cache.NewListener(pool.Pool, svc.products.Invalidate, cache.ProductsChannel)
	productListener.Start(ctx)
	defer productListener.Stop()

	var idempotency middleware.IdempotencyStore
	if cfg.Server.IdempotencyEnabled {
		idempotency = postgres.NewIdempotencyStore(txManager, cfg.Server.IdempotencyTTL)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:      log,
		DB:          txManager,
		Labels:      svc.labels,
		Employees:   svc.employees,
		Payslips:    svc.payslips,
		Sequences:   svc.counters,
		Artifacts:   artifacts,
		Idempotency: idempotency,
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// In-flight label requests finish their compensation before the pool closes.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func poolConfig(db config.DatabaseConfig) postgres.PoolConfig {
	pc := postgres.DefaultPoolConfig(db.DSN)
	if db.MaxConns > 0 {
		pc.MaxConns = db.MaxConns
	}
	if db.MinConns > 0 {
		pc.MinConns = db.MinConns
	}
	if db.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = db.MaxConnLifetime
	}
	if db.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = db.MaxConnIdleTime
	}
	if db.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = db.HealthCheckPeriod
	}
	return pc
}
