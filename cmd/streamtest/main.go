// streamtest connects to the live socket and prints decoded events to the
// console. Useful for verifying room delivery without running a full watcher.
//
// Usage:
//
//	go run ./cmd/streamtest --config configs/watcher.local.yaml --order ord_123
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodsquare/orderlive/internal/config"
	"github.com/foodsquare/orderlive/internal/rooms"
	"github.com/foodsquare/orderlive/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/watcher.example.yaml", "path to config file")
	orderID := flag.String("order", "", "order room to join")
	vendorID := flag.String("vendor", "", "vendor room to join")
	userID := flag.String("user", "", "user room to join")
	verbose := flag.Bool("verbose", false, "print full frame JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	conn := transport.NewConn(transport.Config{
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
	}, logger)
	defer conn.Disconnect()

	manager := rooms.NewManager(rooms.Config{JoinTimeout: cfg.Socket.JoinTimeout}, conn, logger)

	sub := conn.OnState(func(s transport.State) {
		logger.Info("connection state", "state", s)
		if s == transport.StateConnected {
			replayCtx, replayCancel := context.WithTimeout(ctx, cfg.Socket.JoinTimeout)
			defer replayCancel()
			if err := manager.Replay(replayCtx); err != nil {
				logger.Warn("room replay incomplete", "error", err)
			}
		}
	})
	defer sub.Unsubscribe()

	joinCtx, joinCancel := context.WithTimeout(ctx, cfg.Socket.JoinTimeout)
	if *userID != "" {
		manager.Join(joinCtx, rooms.UserRoom(*userID))
	}
	if *orderID != "" {
		manager.Join(joinCtx, rooms.OrderRoom(*orderID))
	}
	if *vendorID != "" {
		manager.Join(joinCtx, rooms.VendorRoom(*vendorID))
	}
	joinCancel()

	// Drain frames before connecting: the replay inside the state listener
	// waits for join acks delivered through this loop.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-conn.Frames():
				if manager.HandleFrame(f) {
					continue
				}
				if *verbose {
					raw, _ := json.Marshal(f)
					fmt.Println(string(raw))
					continue
				}
				fmt.Printf("%s  %s  %s\n", time.Now().Format(time.RFC3339), f.Event, string(f.Data))
			}
		}
	}()

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = conn.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	logger.Info("streaming; press ctrl-c to stop")
	<-ctx.Done()
}
