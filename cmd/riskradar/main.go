// RiskRadar server — serves the HTTP API, runs the analysis and cache
// worker pools, and orchestrates counterparty risk sessions.
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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/riskradar/riskradar/pkg/api"
	"github.com/riskradar/riskradar/pkg/cleanup"
	"github.com/riskradar/riskradar/pkg/config"
	"github.com/riskradar/riskradar/pkg/httpcore"
	"github.com/riskradar/riskradar/pkg/llm"
	"github.com/riskradar/riskradar/pkg/providers"
	"github.com/riskradar/riskradar/pkg/queue"
	"github.com/riskradar/riskradar/pkg/services"
	"github.com/riskradar/riskradar/pkg/storage"
	"github.com/riskradar/riskradar/pkg/version"
	"github.com/riskradar/riskradar/pkg/workflow"
)

// resolveConsumerID determines the consumer identifier for multi-replica
// queue coordination. Priority: CONSUMER_ID env > HOSTNAME env > "local"
func resolveConsumerID() string {
	if id := os.Getenv("CONSUMER_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "local"
}

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	consumerID := resolveConsumerID()
	ctx := context.Background()

	slog.Info("Starting RiskRadar",
		"version", version.Full(),
		"consumer_id", consumerID)

	// 1. Configuration
	cfg, err := config.Initialize(ctx)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Storage (Redis with in-memory failover) and key-layout migration
	store := storage.New(ctx, storage.Options{
		RedisAddr:            cfg.RedisAddr,
		RedisPassword:        cfg.RedisPassword,
		RedisDB:              cfg.RedisDB,
		CompressionThreshold: cfg.CompressionThreshold,
	})
	if err := store.Migrate(ctx); err != nil {
		slog.Error("Storage migration failed", "error", err)
		os.Exit(1)
	}

	// 3. Background retention loop
	cleaner := cleanup.NewService(store, cfg.CleanupInterval)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	// 4. Outbound HTTP core shared by every provider
	metrics := httpcore.NewMetrics(prometheus.DefaultRegisterer)
	outbound := httpcore.NewClient(metrics)

	providerSet := providers.NewSet(providers.Deps{
		HTTP:      outbound,
		Store:     store,
		Services:  cfg.Services,
		Providers: cfg.Providers,
	})
	cascade := llm.NewCascade(llm.Deps{HTTP: outbound, Cfg: cfg.LLM})
	slog.Info("Providers initialized",
		"llm_configured", cascade.ConfiguredCount())

	// 5. Workflow machine and its event bus
	bus := workflow.NewBus()
	machine := workflow.NewMachine(cfg, providerSet, cascade, store, bus)

	// 6. Queue brokers. Redis-backed when configured so queued tasks survive
	// restarts; otherwise per-process in-memory queues.
	var analysisBroker, cacheBroker queue.Broker
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() {
			if err := client.Close(); err != nil {
				slog.Error("Error closing queue Redis client", "error", err)
			}
		}()
		analysisBroker = queue.NewRedisBroker(client, queue.AnalysisQueue, cfg.Queue.MaxDeliveries)
		cacheBroker = queue.NewRedisBroker(client, queue.CacheQueue, cfg.Queue.MaxDeliveries)
	} else {
		slog.Warn("Redis not configured, queued tasks will not survive restarts")
		analysisBroker = queue.NewMemoryBroker(queue.AnalysisQueue, cfg.Queue.MaxDeliveries)
		cacheBroker = queue.NewMemoryBroker(queue.CacheQueue, cfg.Queue.MaxDeliveries)
	}

	// 7. Domain services
	analysisService := services.NewAnalysisService(ctx, machine, store, analysisBroker)
	reportService := services.NewReportService(store)
	threadService := services.NewThreadService(store)
	taskService := services.NewTaskService(analysisBroker)

	// 8. Worker pools (before the HTTP server, so queued work drains first)
	analysisPool := queue.NewPool(consumerID, queue.AnalysisQueue, analysisBroker,
		cfg.Queue, queue.NewAnalysisExecutor(machine, store))
	if err := analysisPool.Start(ctx); err != nil {
		slog.Error("Failed to start analysis worker pool", "error", err)
		os.Exit(1)
	}
	cachePool := queue.NewPool(consumerID, queue.CacheQueue, cacheBroker,
		cfg.Queue, queue.NewCacheExecutor(store))
	if err := cachePool.Start(ctx); err != nil {
		slog.Error("Failed to start cache worker pool", "error", err)
		os.Exit(1)
	}

	// 9. HTTP server
	server := api.NewServer(cfg, api.Deps{
		Store:     store,
		Bus:       bus,
		Analysis:  analysisService,
		Reports:   reportService,
		Threads:   threadService,
		Tasks:     taskService,
		Providers: providerSet,
		Outbound:  outbound,
		Metrics:   metrics,
		Pool:      analysisPool,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("RiskRadar started",
		"consumer_id", consumerID,
		"workers", cfg.Queue.WorkerCount,
		"storage", store.Backend())

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: stop claiming new tasks and wait for active
	// ones, then drain HTTP. Abandoned tasks are orphan-recovered later.
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		cachePool.Stop()
		analysisPool.Stop()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Worker pools stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("Shutdown timeout exceeded, incomplete tasks will be orphan-recovered")
	}

	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
