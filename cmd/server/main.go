package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/signwatch/service/config"
	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/etherscan"
	"github.com/brojonat/signwatch/service/metrics"
	natspkg "github.com/brojonat/signwatch/service/nats"
	"github.com/brojonat/signwatch/service/poller"
	"github.com/brojonat/signwatch/service/server"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"contract", cfg.ChecksumContractAddress(),
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Etherscan client. The per-request bound comes from the poller's fetch
	// timeout; this one only guards against a stuck connection.
	httpClient := &http.Client{Timeout: cfg.FetchTimeout + 10*time.Second}
	ethClient := etherscan.NewClient(httpClient, cfg.EtherscanAPIURL, cfg.EtherscanAPIKey, m, logger)
	logger.Info("initialized etherscan client", "url", cfg.EtherscanAPIURL)

	store := dashboard.NewStore(
		dashboard.WithMetrics(m),
		dashboard.WithLogger(logger),
	)

	opts := poller.Options{
		ContractAddress: cfg.ContractAddress,
		PageSize:        cfg.FetchPageSize,
		Interval:        cfg.PollInterval,
		FetchTimeout:    cfg.FetchTimeout,
		AutoRefresh:     cfg.AutoRefresh,
		Metrics:         m,
		Logger:          logger,
	}

	// NATS is optional; without it novelty events are only shown in the UI.
	if cfg.NATSURL != "" {
		publisher, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		opts.Publisher = publisher
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	}

	p := poller.New(ethClient, store, opts)

	httpServer := server.New(cfg, store, p, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// The initial fetch completes before the server accepts requests.
	p.Start(ctx)
	defer p.Stop()

	logger.Info("server initialized, all dependencies ready",
		"poll_interval", cfg.PollInterval,
		"auto_refresh", cfg.AutoRefresh,
		"nats_enabled", cfg.NATSURL != "",
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
