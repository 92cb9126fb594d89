// Package main is the entry point for the outbox relay worker. It drains the
// transactional outbox into Kafka and sweeps exhausted messages to the DLQ.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"khmerpos/internal/config"
	"khmerpos/internal/infrastructure/kafka"
	"khmerpos/internal/infrastructure/storage/postgres"
	"khmerpos/pkg/logger"
)

func main() {
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

	log.Info("starting khmerpos outbox worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	publisher := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, registry)
	defer publisher.Close()

	relay := postgres.NewOutboxRelay(pool, cfg.OutboxBatchSize, publisher)

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		log.Infow("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("metrics server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runRelay(ctx, log, relay, cfg.RelayInterval)
	}()
	go func() {
		defer wg.Done()
		runDLQSweep(ctx, log, relay, cfg.DLQInterval)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("worker stopped")
}

// runRelay drains pending outbox messages on a fixed interval.
func runRelay(ctx context.Context, log *logger.Logger, relay *postgres.OutboxRelay, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			processed, err := relay.ProcessBatch(ctx)
			if err != nil {
				log.Errorw("outbox relay batch failed", "error", err)
				continue
			}
			if processed > 0 {
				log.Infow("outbox batch delivered", "count", processed)
			}
		}
	}
}

// runDLQSweep periodically moves exhausted messages to the dead letter queue.
func runDLQSweep(ctx context.Context, log *logger.Logger, relay *postgres.OutboxRelay, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			moved, err := relay.MoveToDLQ(ctx)
			if err != nil {
				log.Errorw("dlq sweep failed", "error", err)
				continue
			}
			if moved > 0 {
				log.Warnw("messages moved to dlq", "count", moved)
			}
		}
	}
}
