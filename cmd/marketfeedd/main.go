// Package main implements the entry point for marketfeedd, the FF14 market
// feed cache daemon. It maintains a streaming connection to the Universalis
// feed, keeps watched items warm in the entity cache, and serves metrics and
// health over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/dan246/ff14-tw-market/config"
	"github.com/dan246/ff14-tw-market/feed"
	"github.com/dan246/ff14-tw-market/market"
	"github.com/dan246/ff14-tw-market/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "marketfeedd"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s (build %s)\n", appName, Version, BuildTime)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid",
			"data_center", cfg.DataCenter, "worlds", len(cfg.Worlds))
		return nil
	}

	logger.Info("Starting market feed daemon",
		"data_center", cfg.DataCenter,
		"worlds", cfg.WorldIDs(),
		"feed_url", cfg.Feed.URL)

	registry := metric.NewRegistry()

	dispatcher, err := feed.NewDispatcher(cfg.WorldIDs(),
		feed.WithRingCapacity(cfg.Feed.RecentEventCapacity),
		feed.WithDispatcherLogger(logger),
		feed.WithDispatcherMetrics(registry.Metrics),
		feed.WithRingMetrics(registry),
	)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	client, err := feed.NewClient(cfg.Feed.URL, dispatcher,
		feed.WithLogger(logger),
		feed.WithMetrics(registry.Metrics),
		feed.WithReconnectWait(cfg.Feed.ReconnectWait()),
		feed.WithPingInterval(cfg.Feed.PingInterval()),
		feed.WithHandshakeTimeout(cfg.Feed.HandshakeTimeout()),
	)
	if err != nil {
		return fmt.Errorf("create feed client: %w", err)
	}

	fetcher, err := market.NewUniversalisFetcher(cfg.Market,
		market.WithFetcherLogger(logger),
		market.WithFetcherMetrics(registry.Metrics),
	)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	svc, err := market.NewService(cfg, client, fetcher,
		market.WithServiceLogger(logger),
		market.WithServiceMetrics(registry.Metrics),
		market.WithCacheMetrics(registry),
	)
	if err != nil {
		return fmt.Errorf("create market service: %w", err)
	}
	dispatcher.SetStore(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start feed client: %w", err)
	}

	for _, item := range cfg.WatchSeed {
		if err := svc.Watch(item); err != nil {
			logger.Warn("failed to watch seed item", "item", item, "error", err)
		}
	}
	logger.Info("Watch seed applied", "items", len(cfg.WatchSeed))

	httpServer := startHTTPServer(cliCfg.MetricsPort, registry, svc, logger)

	go runMaintenance(ctx, svc, cfg.Market.MaxEntryAge(), logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutdown signal received", "signal", sig.String())

	cancel()
	if err := client.Stop(cliCfg.ShutdownTimeout); err != nil {
		logger.Warn("feed client did not stop cleanly", "error", err)
	}
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown failed", "error", err)
		}
	}

	logger.Info("Shutdown complete")
	return nil
}

// startHTTPServer serves /metrics and /healthz. Returns nil when disabled.
func startHTTPServer(port int, registry *metric.Registry, svc *market.Service, logger *slog.Logger) *http.Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := svc.ConnectionStatus()
		body := map[string]any{
			"status":     "ok",
			"feed":       status.String(),
			"watched":    len(svc.WatchedItems()),
			"cache_size": svc.CacheSize(),
		}
		w.Header().Set("Content-Type", "application/json")
		if status != feed.StatusConnected {
			w.WriteHeader(http.StatusServiceUnavailable)
			body["status"] = "degraded"
		}
		_ = json.NewEncoder(w).Encode(body)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("Metrics server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}

// runMaintenance evicts stale cache entries on a fixed cadence.
func runMaintenance(ctx context.Context, svc *market.Service, maxAge time.Duration, logger *slog.Logger) {
	interval := maxAge / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.EvictStale(); n > 0 {
				logger.Debug("evicted stale cache entries", "count", n)
			}
		}
	}
}
