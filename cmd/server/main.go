package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/brojonat/tokensmith/service/config"
	"github.com/brojonat/tokensmith/service/metrics"
	natspkg "github.com/brojonat/tokensmith/service/nats"
	"github.com/brojonat/tokensmith/service/server"
	"github.com/brojonat/tokensmith/service/session"
	"github.com/brojonat/tokensmith/service/solana"
	"github.com/brojonat/tokensmith/service/wallet"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Optional env file; variables already set take precedence
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"network", cfg.Network,
	)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics(prometheus.DefaultRegisterer)
	}

	// Initialize Solana RPC client
	// Note: For premium RPC endpoints, include API key in the URL
	rpcURL, err := solana.SelectRandomEndpoint(cfg.SolanaRPCURL)
	if err != nil {
		logger.Error("failed to select RPC endpoint", "error", err)
		os.Exit(1)
	}
	rpcClient := solana.NewRPCClient(rpcURL, cfg.Network, m)
	logger.Info("initialized solana RPC client", "endpoints", len(cfg.SolanaRPCURL))

	// Initialize wallet
	key, err := wallet.LoadPrivateKey(cfg.WalletKeypairPath, cfg.WalletPrivateKey)
	if err != nil {
		logger.Error("failed to load wallet key", "error", err)
		os.Exit(1)
	}
	provider := wallet.NewKeypairProvider(key, rpcClient, logger, wallet.WithMetrics(m))

	builder := solana.NewBuilder(rpcClient, provider, cfg.BuilderConfig(), m, logger)

	// Initialize NATS (optional). Interfaces stay nil when disabled.
	var (
		publisher  natspkg.Publisher
		subscriber natspkg.Subscriber
	)
	if cfg.NATSURL != "" {
		pub, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect NATS publisher", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		publisher = pub

		sub, err := natspkg.NewSubscriber(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to connect NATS subscriber", "error", err)
			os.Exit(1)
		}
		subscriber = sub
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, submission events disabled")
	}

	sess := session.New(builder, publisher, session.Config{
		TransferReceiver: cfg.TransferReceiver,
		TransferAmount:   cfg.TransferAmountSOL,
	}, logger)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, sess, subscriber, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"nats_enabled", publisher != nil,
		"metrics_enabled", m != nil,
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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
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
