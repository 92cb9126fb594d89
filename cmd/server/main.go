// Package main is the entry point for the POS sync API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"khmerpos/internal/config"
	"khmerpos/internal/domain/auth"
	"khmerpos/internal/domain/policy"
	"khmerpos/internal/domain/ports"
	"khmerpos/internal/infrastructure/cache"
	v1 "khmerpos/internal/infrastructure/http/v1"
	"khmerpos/internal/infrastructure/storage/postgres"
	"khmerpos/internal/sync"
	"khmerpos/pkg/logger"
)

func main() {
	// .env is optional; real deployments inject environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	log.Info("starting khmerpos server")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to create audit service", "error", err)
	}

	discountEngine, err := policy.NewEngine()
	if err != nil {
		log.Fatalw("failed to create discount engine", "error", err)
	}

	var menu ports.MenuPort = postgres.NewMenuRepo(txManager)
	var menuCache *cache.CachedMenu
	if cfg.RedisEnabled {
		menuCache = cache.NewCachedMenu(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, menu)
		if err := menuCache.Ping(ctx); err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer menuCache.Close()
		menu = menuCache
	}

	sessionRepo := postgres.NewCashSessionRepo(txManager)
	pipeline := sync.NewPipeline(sync.Config{
		TxManager:      txManager,
		Ledger:         postgres.NewOperationLedger(txManager),
		Sales:          postgres.NewSaleRepo(txManager),
		CashDrawer:     sessionRepo,
		Sessions:       sessionRepo,
		Registers:      postgres.NewRegisterRepo(txManager),
		Policies:       postgres.NewPolicyRepo(txManager),
		Menu:           menu,
		BranchGuard:    postgres.NewBranchRepo(txManager),
		AuditWriter:    auditService,
		Events:         postgres.NewOutboxPublisher(txManager),
		DiscountEngine: discountEngine,
	})

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))

	router := v1.NewRouter(v1.RouterConfig{
		Pool:           pool,
		Logger:         log,
		TokenValidator: jwtService,
		Pipeline:       pipeline,
		AuditHistory:   auditService,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("http server failed", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server shutdown failed", "error", err)
	}

	log.Info("server stopped")
}
