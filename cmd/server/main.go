package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/config"
	"github.com/fundlift/fundlift/service/events"
	"github.com/fundlift/fundlift/service/metrics"
	natspkg "github.com/fundlift/fundlift/service/nats"
	"github.com/fundlift/fundlift/service/server"
	"github.com/fundlift/fundlift/service/sync"
	"github.com/fundlift/fundlift/service/wallet"
	"github.com/fundlift/fundlift/service/workflow"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"network", cfg.TargetNetwork.Name,
		"chain_id", cfg.TargetNetwork.ChainID,
		"contract", cfg.ContractAddress.Hex(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics(nil)

	// Dial the RPC endpoint for the read path and the event watcher.
	rpcURL := cfg.TargetNetwork.RPCURLs[0]
	node, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		logger.Error("failed to dial RPC endpoint", "url", rpcURL, "error", err)
		os.Exit(1)
	}
	defer node.Close()
	logger.Info("connected to RPC endpoint", "url", rpcURL)

	gateway, err := chain.NewGateway(node, cfg.ContractAddress, cfg.ConfirmPollInterval, m, logger)
	if err != nil {
		logger.Error("failed to initialize contract gateway", "error", err)
		os.Exit(1)
	}

	projects := sync.New(gateway, m, logger)

	// Initial snapshot. A failure here is tolerated: the watcher and the
	// refresh endpoint will retry, and the server starts with an empty
	// project list until a read succeeds.
	if _, err := projects.Refresh(ctx); err != nil {
		logger.Warn("initial project refresh failed", "error", err)
	}

	// NATS publisher + SSE bridge are optional: without a NATS URL the
	// server still works, just without push updates.
	var publisher natspkg.Publisher
	var notifier workflow.Notifier
	var sseBridge *server.SSEBridge
	if cfg.NATSURL != "" {
		corePub, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to connect to NATS", "url", cfg.NATSURL, "error", err)
			os.Exit(1)
		}
		defer corePub.Close()
		publisher = corePub
		notifier = natspkg.NewNoticeNotifier(corePub, logger)

		sseBridge, err = server.NewSSEBridge(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to initialize SSE bridge", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("NATS_URL not set, push updates disabled")
	}

	runner := workflow.NewRunner(gateway, projects, notifier, cfg.TargetNetwork.Currency.Decimals, m, logger)

	registry := config.NewNetworkRegistry(cfg.TargetNetwork)
	connector := wallet.NewConnector(cfg.KeystoreDir, cfg.TargetNetwork, registry, nil, logger)

	httpServer := server.New(cfg.ServerAddr, cfg, projects, runner, gateway, connector, sseBridge, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// Auto-connect the wallet when a passphrase is configured, the way a
	// previously-authorized wallet reconnects on page load.
	session, err := connector.AutoConnect(ctx, cfg.WalletAccount, cfg.KeystorePassphrase)
	if err != nil {
		logger.Warn("wallet auto-connect failed", "error", err)
	} else if session != nil {
		httpServer.WithSession(session)
	}

	// Start the event watcher in the background.
	watcher := events.NewWatcher(node, gateway, projects, publisher, cfg.WatchInterval, cfg.TargetNetwork.Currency.Decimals, m, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("event watcher stopped", "error", err)
		}
	}()

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

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
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
