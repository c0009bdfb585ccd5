package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/candlefi/candle-markets/internal/lifecycle"
	"github.com/candlefi/candle-markets/internal/server"
	"github.com/candlefi/candle-markets/internal/server/handler"
	"github.com/candlefi/candle-markets/internal/server/ws"
	"github.com/candlefi/candle-markets/internal/service"
)

// ServeMode runs the HTTP API and websocket hub only. Market lifecycle is
// someone else's job: a scheduler replica or an operator with force-create.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("starting serve mode")
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("serve mode requires server.enabled = true")
	}
	return a.buildServer(deps, nil).Start(ctx)
}

// SchedulerMode runs the lifecycle loops only: creation, settlement,
// reconciliation and archival.
func (a *App) SchedulerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("starting scheduler mode")
	return a.buildOrchestrator(deps).Run(ctx)
}

// FullMode runs the scheduler loops and the HTTP API in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.Info("starting full mode")

	orch := a.buildOrchestrator(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(ctx) })
	if a.cfg.Server.Enabled {
		srv := a.buildServer(deps, orch)
		g.Go(func() error { return srv.Start(ctx) })
	}
	return g.Wait()
}

func (a *App) buildOrchestrator(deps *Dependencies) *lifecycle.Orchestrator {
	controller := lifecycle.NewController(
		lifecycle.Config{
			Asset:                a.cfg.Market.Asset,
			Window:               a.cfg.Market.Window.Duration,
			LockAhead:            a.cfg.Market.LockAhead.Duration,
			VirtualLiquidity:     a.cfg.Market.VirtualLiquidity,
			MaxConcurrentSettles: int64(a.cfg.Scheduler.MaxConcurrentSettles),
			LowTreasury:          a.cfg.Notify.LowTreasuryThreshold,
		},
		deps.Markets, deps.Gateway, deps.Oracle, deps.Bus, deps.Notifier, a.logger,
	)
	reconciler := lifecycle.NewReconciler(deps.Markets, deps.Gateway, deps.Notifier, a.logger)

	return lifecycle.NewOrchestrator(
		controller, reconciler, deps.Archiver, deps.Locks,
		lifecycle.Timing{
			Window:            a.cfg.Market.Window.Duration,
			SettlePoll:        a.cfg.Scheduler.SettlePoll.Duration,
			ReconcileInterval: a.cfg.Scheduler.ReconcileInterval.Duration,
			ArchiveInterval:   a.cfg.Scheduler.ArchiveInterval.Duration,
			LockTTL:           a.cfg.Scheduler.LockTTL.Duration,
		},
		a.logger,
	)
}

// buildServer assembles services and handlers. orch is nil in serve mode,
// which leaves the force-create endpoint unmounted.
func (a *App) buildServer(deps *Dependencies, orch *lifecycle.Orchestrator) *server.Server {
	marketSvc := service.NewMarketService(deps.Markets, a.cfg.Market.MaxBet, a.logger)
	betSvc := service.NewBetService(deps.Markets, deps.Bets, deps.Gateway, deps.Bus, a.logger)
	claimSvc := service.NewClaimService(deps.Markets, deps.Bets, deps.Payouts, deps.PnL, deps.Gateway, deps.Bus, a.logger)
	positionSvc := service.NewPositionService(deps.Markets, deps.Bets, deps.PnL, a.logger)

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.cfg.Mode, map[string]handler.Pinger{
			"postgres": deps.PingPostgres,
			"redis":    deps.PingRedis,
		}),
		Market:   handler.NewMarketHandler(marketSvc),
		Position: handler.NewPositionHandler(positionSvc),
		Bet:      handler.NewBetHandler(betSvc),
		Claim:    handler.NewClaimHandler(claimSvc),
		Hub:      ws.NewHub(deps.Bus, a.logger),
	}
	if orch != nil {
		handlers.Lifecycle = handler.NewLifecycleHandler(orch)
	}

	return server.New(server.Config{
		Port:        a.cfg.Server.Port,
		AdminToken:  a.cfg.Server.AdminToken,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateLimitWindow.Duration,
		Limiter:     deps.Limiter,
	}, handlers, a.logger)
}
