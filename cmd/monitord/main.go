package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/motordiag/faultstream/internal/config"
	"github.com/motordiag/faultstream/internal/control"
	"github.com/motordiag/faultstream/internal/format"
	"github.com/motordiag/faultstream/internal/service"
	"github.com/motordiag/faultstream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/monitord.local.yaml", "path to config file")
	statsInterval := flag.Duration("stats-interval", 30*time.Second, "cadence of pipeline stats logging")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting monitord",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"stream_url", cfg.Stream.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optionally start the upstream bridge through the control surface.
	// A failure here only means the stream may not be flowing yet; it
	// never blocks the monitor from starting.
	var ctl *control.Client
	if cfg.Control.URL != "" {
		ctl = control.NewClient(
			cfg.Control.URL,
			control.WithLogger(logger),
			control.WithTimeout(cfg.Control.Timeout),
			control.WithRetries(cfg.Control.MaxRetries, time.Second),
		)

		if status, err := ctl.GetClusterStatus(ctx); err != nil {
			logger.Warn("cluster status unavailable", "error", err)
		} else {
			logger.Info("cluster status",
				"state", status.State,
				"active_nodes", status.ActiveNodes,
			)
		}

		if cfg.Control.AutoStart {
			if err := ctl.StartBridge(ctx); err != nil {
				logger.Warn("failed to start bridge", "error", err)
			} else {
				logger.Info("bridge started")
			}
		}
	}

	// Assemble the ingestion service
	svc := service.New(cfg, logger)

	registry := prometheus.NewRegistry()
	if err := svc.RegisterMetrics(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHTTPHandler(cfg, svc, registry),
	}

	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start service", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := svc.Stop(shutdownCtx); err != nil {
			logger.Error("service shutdown failed", "error", err)
		}
	}()

	if err := svc.Connect(ctx); err != nil {
		logger.Error("failed to connect to stream", "error", err)
		os.Exit(1)
	}

	go logNotices(ctx, svc, logger)
	go logStats(ctx, svc, logger, *statsInterval)

	logger.Info("monitord running",
		"instance_id", cfg.Instance.ID,
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	svc.Disconnect()

	if ctl != nil && cfg.Control.AutoStart {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := ctl.StopBridge(stopCtx); err != nil {
			logger.Warn("failed to stop bridge", "error", err)
		}
		stopCancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("monitord stopped")
}

// logNotices forwards throttled alert notices into the log.
func logNotices(ctx context.Context, svc *service.Service, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case notice, ok := <-svc.Notices():
			if !ok {
				return
			}
			logger.Warn("fault alert",
				"severity", notice.Severity,
				"message", notice.Message,
				"occurrences", notice.Count,
			)
		}
	}
}

// logStats reports pipeline throughput on a fixed cadence.
func logStats(ctx context.Context, svc *service.Service, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			perf := svc.Performance()
			conn := svc.Connection()
			logger.Info("pipeline stats",
				"state", conn.State,
				"health", conn.Health,
				"uptime", svc.ConnectionDuration().Round(time.Second),
				"received", perf.Received,
				"processed", perf.Processed,
				"dropped", perf.Dropped,
				"efficiency", format.Percent(perf.ProcessingEfficiency),
				"receive_rate", fmt.Sprintf("%.1f/s", perf.ReceiveRate),
				"buffer", format.Percent(perf.BufferUtilization),
				"latency_ms", fmt.Sprintf("%.2f", perf.LatencyMs),
				"entities", len(svc.Entities()),
			)
		}
	}
}

// createHTTPHandler serves Prometheus metrics plus a small health and
// status surface.
func createHTTPHandler(cfg *config.MonitorConfig, svc *service.Service, registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		conn := svc.Connection()
		perf := svc.Performance()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		health.Components["stream"] = map[string]any{
			"state":  conn.State,
			"health": conn.Health,
		}
		switch {
		case conn.State != "connected":
			health.Status = "degraded"
		case conn.Health != "good":
			health.Status = "degraded"
		}

		health.Components["pipeline"] = map[string]any{
			"received":  perf.Received,
			"processed": perf.Processed,
			"dropped":   perf.Dropped,
			"entities":  len(svc.Entities()),
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/entities", func(w http.ResponseWriter, r *http.Request) {
		entities := svc.Entities()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"count":    len(entities),
			"entities": entities,
		})
	})

	return mux
}
