package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"news-engine/config"
	"news-engine/utils/logger"
)

// Run is the process entry point: load config, build the component
// graph, start everything in order, then wait for a shutdown signal and
// tear down in reverse order.
func Run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New("news-engine", cfg.IsDevelopment())
	log.Info("starting news engine",
		"environment", cfg.Environment,
		"extract_endpoint", cfg.IPC.ExtractEndpoint,
		"cache_endpoint", cfg.IPC.CacheEndpoint)

	deps, err := BuildDependencies(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	// Start order: cache first so pollers can reach it, then the
	// extraction side, pollers last.
	deps.CacheService.Start()
	deps.Dispatcher.Start()
	deps.Engine.Start(ctx)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.Addr, log)
	}

	log.Info("news engine started", "sources", deps.Registry.Len())
	waitForShutdown(metricsServer, deps, log)
	return nil
}

func startMetricsServer(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

// waitForShutdown blocks until SIGINT/SIGTERM, then stops components in
// reverse dependency order: pollers stop producing, the extractor drains
// its queue into the publisher, the publisher flushes to the bus, and
// only then do the cache service and stores close.
func waitForShutdown(metricsServer *http.Server, deps *Dependencies, log *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down news engine")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	deps.Engine.Stop()
	deps.Dispatcher.Stop()
	deps.Publisher.Close()
	deps.CacheService.Stop()

	if err := deps.Sink.Close(); err != nil {
		log.Error("failed to close table sink", "error", err)
	}
	deps.DBPool.Close()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down metrics server", "error", err)
		}
	}
	log.Info("news engine stopped")
}
