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

	"github.com/foodsquare/orderlive/internal/api"
	"github.com/foodsquare/orderlive/internal/config"
	"github.com/foodsquare/orderlive/internal/demand"
	"github.com/foodsquare/orderlive/internal/metrics"
	"github.com/foodsquare/orderlive/internal/poller"
	"github.com/foodsquare/orderlive/internal/recovery"
	"github.com/foodsquare/orderlive/internal/rooms"
	"github.com/foodsquare/orderlive/internal/transport"
	"github.com/foodsquare/orderlive/internal/version"
	"github.com/foodsquare/orderlive/internal/watch"
)

func main() {
	configPath := flag.String("config", "configs/watcher.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting watcher",
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
		"namespace", cfg.Socket.Namespace,
		"api_url", cfg.API.BaseURL,
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

	// Create REST snapshot client
	restClient := api.NewClient(
		cfg.API.BaseURL,
		cfg.API.Token,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
	)

	// Create recovery registry
	registry := recovery.New(recovery.Config{
		PollInterval:  cfg.Recovery.PollInterval,
		FailThreshold: cfg.Recovery.FailThreshold,
	}, logger)

	// Create the watcher
	watcher := watch.New(watcherConfig(cfg), restClient, registry, logger)

	if err := watcher.Start(ctx); err != nil {
		logger.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Stop()

	// Serve metrics, health, and the manual recovery escape hatch
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHandler(cfg, watcher, registry),
	}

	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	logger.Info("watcher running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("watcher stopped")
}

// watcherConfig assembles the watch configuration from the loaded file.
func watcherConfig(cfg *config.WatcherConfig) watch.Config {
	return watch.Config{
		UserID:   cfg.Instance.UserID,
		VendorID: cfg.Instance.VendorID,
		Transport: transport.Config{
			URL:               cfg.Socket.URL,
			Namespace:         cfg.Socket.Namespace,
			Token:             cfg.API.Token,
			HandshakeTimeout:  cfg.Socket.HandshakeTimeout,
			WriteTimeout:      cfg.Socket.WriteTimeout,
			HeartbeatInterval: cfg.Socket.HeartbeatInterval,
			HeartbeatTimeout:  cfg.Socket.HeartbeatTimeout,
			ReconnectBase:     cfg.Socket.ReconnectBaseDelay,
			ReconnectMax:      cfg.Socket.ReconnectMaxDelay,
			MaxAttempts:       cfg.Socket.MaxAttempts,
			BufferSize:        cfg.Socket.BufferSize,
		},
		Rooms: rooms.Config{
			JoinTimeout: cfg.Socket.JoinTimeout,
		},
		Demand: demand.Config{
			ConnectDelay:    cfg.Demand.ConnectDelay,
			DisconnectDelay: cfg.Demand.DisconnectDelay,
		},
		Poller: poller.Config{
			Interval:    cfg.Poller.Interval,
			Concurrency: cfg.Poller.Concurrency,
			Timeout:     cfg.Poller.Timeout,
		},
		ResyncOnReconnect: true,
	}
}

// createHandler serves /health, metrics, and POST /recover.
func createHandler(cfg *config.WatcherConfig, watcher *watch.Watcher, registry *recovery.Registry) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(cfg.Metrics.Path, metrics.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     string(registry.Health()),
			Components: make(map[string]interface{}),
		}

		conn := map[string]interface{}{
			"state": string(watcher.State()),
		}
		if err := watcher.Err(); err != nil {
			conn["error"] = err.Error()
		}
		health.Components["connection"] = conn
		health.Components["rooms"] = len(watcher.Rooms())

		w.Header().Set("Content-Type", "application/json")
		if health.Status == string(recovery.HealthFailed) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/recover", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		ok := registry.ForceRecovery(ctx)
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusBadGateway)
		}
		json.NewEncoder(w).Encode(map[string]bool{"recovered": ok})
	})

	return mux
}
