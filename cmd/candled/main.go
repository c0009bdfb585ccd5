// Command candled is the candle market daemon. It loads configuration, wires
// dependencies, sets up signal handling, and starts the configured mode:
// serve (HTTP API only), scheduler (lifecycle loops only), or full (both).
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

	"github.com/candlefi/candle-markets/internal/app"
	"github.com/candlefi/candle-markets/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	initTreasury := flag.Bool("init-treasury", false, "initialize the on-chain treasury and exit")
	fundTreasury := flag.Uint64("fund-treasury", 0, "transfer this many base units into the treasury and exit")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if *initTreasury {
		if err := application.InitTreasury(ctx); err != nil {
			logger.Error("treasury init failed", "error", err)
			os.Exit(1)
		}
		return
	}
	if *fundTreasury > 0 {
		if err := application.FundTreasury(ctx, *fundTreasury); err != nil {
			logger.Error("treasury funding failed", "error", err)
			os.Exit(1)
		}
		return
	}

	logger.Info("candled starting", "mode", cfg.Mode, "config", *configPath)

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("shut down gracefully")
		} else {
			logger.Error("exited with error", "error", err)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("candled stopped")
}

func logLevel(s string) slog.Level {
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
