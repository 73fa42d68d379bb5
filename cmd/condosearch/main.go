package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acastellana/clawcondos-sub001/internal/mcp"
	"github.com/acastellana/clawcondos-sub001/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Environment configuration
const (
	envDBDir        = "CONDOSEARCH_DB_DIR"
	envSessionsDir  = "CONDOSEARCH_SESSIONS_DIR"
	envSyncInterval = "CONDOSEARCH_SYNC_INTERVAL"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("condosearch MCP server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		os.Exit(0)
	}

	// stdout is reserved for the MCP protocol; everything else goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	logger.Info("condosearch starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"vector_extension", storage.VectorExtensionAvailable)

	cfg := mcp.Config{
		DBDir:       os.Getenv(envDBDir),
		SessionsDir: os.Getenv(envSessionsDir),
		Logger:      logger,
	}
	if raw := os.Getenv(envSyncInterval); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			logger.Error("invalid sync interval", "value", raw, "error", err)
			os.Exit(1)
		}
		cfg.SyncInterval = interval
	}

	server, err := mcp.NewServer(cfg)
	if err != nil {
		logger.Error("failed to create MCP server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		server.Close()
	case err := <-errChan:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}
