// Command pumpbot is the entry point for the pump.fun trading agent. It loads
// configuration, validates it, sets up signal handling, and runs the trade
// loop in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/pumpbot/internal/app"
	"github.com/alanyoungcy/pumpbot/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override the configured mode (trade or paper)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	shown := config.RedactedConfig(cfg)
	logger.Info("pumpbot starting",
		slog.String("mode", shown.Mode),
		slog.String("config", *configPath),
		slog.String("backend", shown.Execution.Backend),
		slog.String("storage", shown.Storage.Backend),
		slog.String("rpc_url", shown.Solana.RPCURL),
		slog.String("feed_url", shown.Feed.WsURL),
		slog.Float64("buy_amount_sol", shown.Trading.BuyAmountSOL),
		slog.Int("max_tracked", shown.Trading.MaxTracked),
		slog.Bool("redis", shown.Redis.Enabled),
		slog.Bool("s3", shown.S3.Enabled),
		slog.Bool("server", shown.Server.Enabled),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("pumpbot stopped")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
