// Chainsight - investigative dashboard for on-chain risk intelligence
package main

import (
	"context"
	"os"

	"github.com/chainsight/core/internal/config"
	"github.com/chainsight/core/internal/logging"
	"github.com/chainsight/core/internal/server"
	"github.com/chainsight/core/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting chainsight",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Rebuild the logger with the configured level
	logger = logging.New(cfg.LogLevel, "text")

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"primary_upstream", cfg.PrimaryUpstream,
		"max_graph_depth", cfg.MaxGraphDepth,
	)

	ctx := context.Background()

	// Tracing (no-op when no OTLP endpoint is configured)
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			if err := shutdownTraces(context.Background()); err != nil {
				logger.Error("trace shutdown error", "error", err)
			}
		}()
	}

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
