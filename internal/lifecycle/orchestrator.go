package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Archiver moves aged settled markets to cold storage. Satisfied by
// blob/s3.Archiver; nil disables the archive loop.
type Archiver interface {
	ArchivePass(ctx context.Context) error
}

// Timing holds the loop intervals for the orchestrator.
type Timing struct {
	Window            time.Duration
	SettlePoll        time.Duration
	ReconcileInterval time.Duration
	ArchiveInterval   time.Duration
	LockTTL           time.Duration
}

// Orchestrator runs the scheduled loops: market creation on window
// boundaries, settlement polling, reconciliation and archival. Each loop
// isolates its own failures; only context cancellation stops Run.
type Orchestrator struct {
	controller *Controller
	reconciler *Reconciler
	archiver   Archiver
	locks      domain.LockManager
	timing     Timing
	logger     *slog.Logger
}

// NewOrchestrator wires an Orchestrator. reconciler, archiver and locks may
// each be nil, which disables the corresponding behavior.
func NewOrchestrator(
	controller *Controller,
	reconciler *Reconciler,
	archiver Archiver,
	locks domain.LockManager,
	timing Timing,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		controller: controller,
		reconciler: reconciler,
		archiver:   archiver,
		locks:      locks,
		timing:     timing,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Run starts every loop and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("lifecycle orchestrator starting",
		slog.Duration("window", o.timing.Window),
		slog.Duration("settle_poll", o.timing.SettlePoll))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return o.createLoop(ctx) })
	g.Go(func() error { return o.settleLoop(ctx) })
	if o.reconciler != nil && o.timing.ReconcileInterval > 0 {
		g.Go(func() error { return o.reconcileLoop(ctx) })
	}
	if o.archiver != nil && o.timing.ArchiveInterval > 0 {
		g.Go(func() error { return o.archiveLoop(ctx) })
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Error("orchestrator stopped with error", "error", err)
		return err
	}
	o.logger.Info("orchestrator stopped cleanly")
	return nil
}

// createLoop fires once at startup, then on every window boundary. A short
// delay past the boundary gives the exchange time to open the new candle.
func (o *Orchestrator) createLoop(ctx context.Context) error {
	const boundaryGrace = 5 * time.Second

	o.createPass(ctx)
	for {
		next := domain.WindowStart(time.Now(), o.timing.Window).
			Add(o.timing.Window).
			Add(boundaryGrace)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			o.createPass(ctx)
		}
	}
}

func (o *Orchestrator) createPass(ctx context.Context) {
	o.withLock(ctx, "market:create", func() {
		if _, err := o.controller.CreateCurrent(ctx); err != nil {
			o.logger.Error("create pass failed", "error", err)
		}
	})
}

func (o *Orchestrator) settleLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.timing.SettlePoll)
	defer ticker.Stop()

	o.settlePass(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.settlePass(ctx)
		}
	}
}

func (o *Orchestrator) settlePass(ctx context.Context) {
	o.withLock(ctx, "market:settle", func() {
		n, err := o.controller.SettleExpired(ctx)
		if err != nil {
			o.logger.Error("settle pass failed", "error", err)
			return
		}
		if n > 0 {
			o.logger.Info("settle pass complete", "settled", n)
		}
	})
}

func (o *Orchestrator) reconcileLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.timing.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.withLock(ctx, "market:reconcile", func() {
				n, err := o.reconciler.Reconcile(ctx)
				if err != nil {
					o.logger.Error("reconcile pass failed", "error", err)
					return
				}
				if n > 0 {
					o.logger.Warn("reconcile pass repaired rows", "repaired", n)
				}
			})
		}
	}
}

func (o *Orchestrator) archiveLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.timing.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.withLock(ctx, "market:archive", func() {
				if err := o.archiver.ArchivePass(ctx); err != nil {
					o.logger.Error("archive pass failed", "error", err)
				}
			})
		}
	}
}

// withLock runs fn under a distributed lock when a lock manager is wired,
// or directly when not. A held lock means another replica or a manual
// trigger owns this pass; skipping is the correct outcome.
func (o *Orchestrator) withLock(ctx context.Context, key string, fn func()) {
	if o.locks == nil {
		fn()
		return
	}
	release, err := o.locks.Acquire(ctx, key, o.timing.LockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		o.logger.Debug("pass skipped, lock held elsewhere", "lock", key)
		return
	}
	if err != nil {
		o.logger.Error("lock acquire failed", "lock", key, "error", err)
		return
	}
	defer release()
	fn()
}

// ForceCreate is the manual trigger behind the admin endpoint. It shares the
// create path and lock with the scheduled loop, so a race with the timer
// collapses to one creation.
func (o *Orchestrator) ForceCreate(ctx context.Context) (domain.Market, error) {
	var (
		m   domain.Market
		err error
		ran bool
	)
	o.withLock(ctx, "market:create", func() {
		ran = true
		m, err = o.controller.CreateCurrent(ctx)
	})
	if !ran {
		return domain.Market{}, fmt.Errorf("create already in progress: %w", domain.ErrLockHeld)
	}
	return m, err
}
