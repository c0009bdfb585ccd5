// Package lifecycle drives candle markets through their states: creation at
// window boundaries, settlement after expiry, and mirror reconciliation. The
// ledger program stays authoritative; this package only submits instructions
// and reflects confirmed outcomes into the mirror.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/candlefi/candle-markets/internal/domain"
)

// CandleSource supplies candles for a window start. Satisfied by oracle.Chain.
type CandleSource interface {
	Window(ctx context.Context, start time.Time, window time.Duration) (domain.Candle, error)
}

// Alerter receives operational alerts. Satisfied by notify.Notifier; a nil
// Alerter is allowed and drops everything.
type Alerter interface {
	Alert(ctx context.Context, event, message string, fields map[string]string)
}

// Config holds the product parameters the controller operates under.
type Config struct {
	Asset                string
	Window               time.Duration
	LockAhead            time.Duration
	VirtualLiquidity     uint64
	MaxConcurrentSettles int64
	LowTreasury          uint64
}

// Controller implements the create and settle cycles. Every path is
// idempotent: re-running a cycle against already-created or already-settled
// markets is a no-op, which is what lets timers, manual triggers and crash
// recovery share one code path.
type Controller struct {
	cfg     Config
	markets domain.MarketStore
	gateway domain.LedgerGateway
	candles CandleSource
	bus     domain.SignalBus
	alerter Alerter
	logger  *slog.Logger

	now func() time.Time
}

// NewController wires a Controller. bus and alerter may be nil.
func NewController(
	cfg Config,
	markets domain.MarketStore,
	gateway domain.LedgerGateway,
	candles CandleSource,
	bus domain.SignalBus,
	alerter Alerter,
	logger *slog.Logger,
) *Controller {
	if cfg.MaxConcurrentSettles < 1 {
		cfg.MaxConcurrentSettles = 1
	}
	if cfg.VirtualLiquidity == 0 {
		cfg.VirtualLiquidity = domain.DefaultVirtualLiquidity
	}
	return &Controller{
		cfg:     cfg,
		markets: markets,
		gateway: gateway,
		candles: candles,
		bus:     bus,
		alerter: alerter,
		logger:  logger.With("component", "lifecycle"),
		now:     time.Now,
	}
}

// CreateCurrent ensures the market for the current candle window exists, on
// the ledger first and then in the mirror. It returns the market either way:
// freshly created or already present.
func (c *Controller) CreateCurrent(ctx context.Context) (domain.Market, error) {
	start := domain.WindowStart(c.now(), c.cfg.Window)
	return c.createForWindow(ctx, start)
}

func (c *Controller) createForWindow(ctx context.Context, start time.Time) (domain.Market, error) {
	marketID := domain.MarketIDForWindow(start)
	end := start.Add(c.cfg.Window)

	if m, err := c.markets.GetByID(ctx, marketID); err == nil {
		return m, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, fmt.Errorf("lifecycle: check market %d: %w", marketID, err)
	}

	candle, err := c.candles.Window(ctx, start, c.cfg.Window)
	if err != nil {
		return domain.Market{}, fmt.Errorf("lifecycle: open candle for %d: %w", marketID, err)
	}

	sig, err := c.gateway.CreateMarket(ctx, c.cfg.Asset, candle.Open, start, end, marketID)
	switch {
	case err == nil:
		c.logger.Info("market created",
			"market_id", marketID,
			"open_price", candle.Open,
			"signature", sig)
	case errors.Is(err, domain.ErrAlreadyExists):
		// Ledger has it but the mirror does not: fall through and repair
		// the mirror row from what we were about to write.
		c.logger.Warn("market already on ledger, repairing mirror", "market_id", marketID)
	default:
		return domain.Market{}, fmt.Errorf("lifecycle: create market %d: %w", marketID, err)
	}

	m := domain.Market{
		MarketID:         marketID,
		Asset:            c.cfg.Asset,
		StartTime:        start,
		EndTime:          end,
		LockTime:         end.Add(-c.cfg.LockAhead),
		OpenPrice:        candle.Open,
		GreenPool:        c.cfg.VirtualLiquidity,
		RedPool:          c.cfg.VirtualLiquidity,
		VirtualLiquidity: c.cfg.VirtualLiquidity,
		CreatedAt:        c.now().UTC(),
	}
	if err := c.markets.Insert(ctx, m); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return c.markets.GetByID(ctx, marketID)
		}
		return domain.Market{}, fmt.Errorf("lifecycle: mirror market %d: %w", marketID, err)
	}

	c.publish(ctx, domain.Event{
		Type:      domain.EventMarketCreated,
		MarketID:  marketID,
		Signature: sig,
		At:        c.now().UTC(),
	})
	return m, nil
}

// SettleExpired settles every market past its end time. Failures are isolated
// per market: one stuck settlement neither stops the others nor the loop.
// It returns the number of markets settled in this pass.
func (c *Controller) SettleExpired(ctx context.Context) (int, error) {
	expired, err := c.markets.ListExpiredUnsettled(ctx, c.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("lifecycle: list expired: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	sem := semaphore.NewWeighted(c.cfg.MaxConcurrentSettles)
	settled := make(chan struct{}, len(expired))
	for _, m := range expired {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		m := m
		go func() {
			defer sem.Release(1)
			if err := c.SettleOne(ctx, m); err != nil {
				c.logger.Error("settlement failed",
					"market_id", m.MarketID,
					"error", err)
				c.alert(ctx, "settle_failed",
					fmt.Sprintf("market %d failed to settle", m.MarketID),
					map[string]string{"error": err.Error()})
				return
			}
			settled <- struct{}{}
		}()
	}
	// Drain the semaphore so every in-flight settlement finishes before the
	// pass reports.
	if err := sem.Acquire(ctx, c.cfg.MaxConcurrentSettles); err != nil {
		return 0, err
	}
	sem.Release(c.cfg.MaxConcurrentSettles)

	close(settled)
	n := len(settled)
	if n > 0 {
		c.checkTreasury(ctx)
	}
	return n, nil
}

// SettleOne settles a single expired market: fetch the closed candle, submit
// the settle instruction, then flip the mirror row.
func (c *Controller) SettleOne(ctx context.Context, m domain.Market) error {
	if c.now().Before(m.EndTime) {
		return domain.ErrMarketNotEnded
	}
	if m.Settled {
		return nil
	}

	candle, err := c.candles.Window(ctx, m.StartTime, m.Window())
	if err != nil {
		return fmt.Errorf("close candle: %w", err)
	}
	if !candle.Closed(c.now()) {
		return fmt.Errorf("candle for %d still forming: %w", m.MarketID, domain.ErrStaleCandle)
	}

	sig, err := c.gateway.SettleMarket(ctx, m.MarketID, candle.Close)
	switch {
	case err == nil:
		c.logger.Info("market settled",
			"market_id", m.MarketID,
			"close_price", candle.Close,
			"signature", sig)
	case errors.Is(err, domain.ErrAlreadySettled):
		// Another writer got there first; still reflect it in the mirror.
	default:
		return fmt.Errorf("settle instruction: %w", err)
	}

	if err := c.markets.MarkSettled(ctx, m.MarketID, candle.Close); err != nil &&
		!errors.Is(err, domain.ErrAlreadySettled) {
		return fmt.Errorf("mirror settle %d: %w", m.MarketID, err)
	}

	c.publish(ctx, domain.Event{
		Type:       domain.EventMarketSettled,
		MarketID:   m.MarketID,
		ClosePrice: candle.Close,
		Signature:  sig,
		At:         c.now().UTC(),
	})
	return nil
}

// checkTreasury alerts when the treasury balance drops below the configured
// floor. Settlement itself never blocks on this.
func (c *Controller) checkTreasury(ctx context.Context) {
	if c.cfg.LowTreasury == 0 {
		return
	}
	balance, err := c.gateway.TreasuryBalance(ctx)
	if err != nil {
		c.logger.Warn("treasury balance check failed", "error", err)
		return
	}
	if balance < c.cfg.LowTreasury {
		c.alert(ctx, "low_treasury",
			fmt.Sprintf("treasury balance %d below threshold %d", balance, c.cfg.LowTreasury),
			map[string]string{"balance": fmt.Sprint(balance)})
	}
}

func (c *Controller) publish(ctx context.Context, e domain.Event) {
	if c.bus == nil {
		return
	}
	payload := e.Marshal()
	if err := c.bus.Publish(ctx, e.Type, payload); err != nil {
		c.logger.Warn("event publish failed", "type", e.Type, "error", err)
	}
	if err := c.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
		c.logger.Warn("event stream append failed", "type", e.Type, "error", err)
	}
}

func (c *Controller) alert(ctx context.Context, event, message string, fields map[string]string) {
	if c.alerter == nil {
		return
	}
	c.alerter.Alert(ctx, event, message, fields)
}
