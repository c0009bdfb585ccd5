// Package app owns the top-level application lifecycle for the candle market
// daemon. It wires stores, caches, the ledger gateway, the oracle chain and
// notifications, then starts the goroutines the configured mode needs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/candlefi/candle-markets/internal/config"
	"github.com/candlefi/candle-markets/internal/ledger"
)

// App is the root application object. It owns the configuration, logger, and
// cleanup functions run in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With("component", "app"),
	}
}

// Run wires all dependencies, starts the configured mode, and blocks until
// the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting",
		"mode", a.cfg.Mode,
		"asset", a.cfg.Market.Asset,
		"window", a.cfg.Market.Window.Duration)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "scheduler":
		return a.SchedulerMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// InitTreasury submits the one-time treasury initialization instruction and
// returns once it is confirmed. Run this against a fresh program deployment
// before starting any mode.
func (a *App) InitTreasury(ctx context.Context) error {
	gw, cleanup, err := a.adminGateway(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sig, err := gw.InitializeTreasury(ctx)
	if err != nil {
		return fmt.Errorf("app: initialize treasury: %w", err)
	}
	a.logger.Info("treasury initialized",
		"signature", sig,
		"treasury", gw.TreasuryAddress().String())
	return nil
}

// FundTreasury transfers the given amount of base units from the admin
// account into the treasury.
func (a *App) FundTreasury(ctx context.Context, amount uint64) error {
	if amount == 0 {
		return fmt.Errorf("app: fund amount must be positive")
	}

	gw, cleanup, err := a.adminGateway(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sig, err := gw.FundTreasury(ctx, amount)
	if err != nil {
		return fmt.Errorf("app: fund treasury: %w", err)
	}
	balance, err := gw.TreasuryBalance(ctx)
	if err != nil {
		balance = 0
	}
	a.logger.Info("treasury funded",
		"signature", sig,
		"amount", amount,
		"balance", balance,
		"treasury", gw.TreasuryAddress().String())
	return nil
}

// adminGateway wires dependencies and returns the concrete gateway for
// admin-signed treasury operations.
func (a *App) adminGateway(ctx context.Context) (*ledger.Gateway, func(), error) {
	if a.cfg.Ledger.KeypairPath == "" {
		return nil, nil, fmt.Errorf("app: treasury operations require ledger.keypair_path")
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("app: wire dependencies: %w", err)
	}

	gw, ok := deps.Gateway.(*ledger.Gateway)
	if !ok {
		cleanup()
		return nil, nil, fmt.Errorf("app: ledger gateway does not support treasury operations")
	}
	return gw, cleanup, nil
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
