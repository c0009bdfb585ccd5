package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
)

// Reconciler repairs mirror drift. It re-reads ledger accounts as ground
// truth and overwrites whatever the mirror disagrees on; the mirror is never
// trusted over the ledger.
type Reconciler struct {
	markets domain.MarketStore
	gateway domain.LedgerGateway
	alerter Alerter
	logger  *slog.Logger

	now func() time.Time
}

// NewReconciler wires a Reconciler. alerter may be nil.
func NewReconciler(markets domain.MarketStore, gateway domain.LedgerGateway, alerter Alerter, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		markets: markets,
		gateway: gateway,
		alerter: alerter,
		logger:  logger.With("component", "reconciler"),
		now:     time.Now,
	}
}

// Reconcile walks every unsettled mirror market and folds ledger state back
// in. It returns the number of rows repaired.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	active, err := r.markets.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconcile: list active: %w", err)
	}

	repaired := 0
	for _, mirror := range active {
		fixed, err := r.reconcileOne(ctx, mirror)
		if err != nil {
			r.logger.Error("reconcile failed", "market_id", mirror.MarketID, "error", err)
			continue
		}
		if fixed {
			repaired++
		}
	}
	return repaired, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, mirror domain.Market) (bool, error) {
	truth, err := r.gateway.GetMarket(ctx, mirror.MarketID)
	if errors.Is(err, domain.ErrNotFound) {
		// A mirror row without a ledger account means something wrote the
		// mirror before confirmation. Surface it; deleting data is an
		// operator decision.
		r.logger.Error("mirror row has no ledger account", "market_id", mirror.MarketID)
		if r.alerter != nil {
			r.alerter.Alert(ctx, "mirror_drift",
				fmt.Sprintf("market %d exists in mirror but not on ledger", mirror.MarketID),
				map[string]string{"market_id": fmt.Sprint(mirror.MarketID)})
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read ledger market %d: %w", mirror.MarketID, err)
	}

	fixed := false

	if truth.Settled && !mirror.Settled {
		if truth.ClosePrice == nil {
			return false, fmt.Errorf("ledger market %d settled without close price", mirror.MarketID)
		}
		if err := r.markets.MarkSettled(ctx, mirror.MarketID, *truth.ClosePrice); err != nil &&
			!errors.Is(err, domain.ErrAlreadySettled) {
			return false, fmt.Errorf("repair settled flag for %d: %w", mirror.MarketID, err)
		}
		r.logger.Warn("repaired settled flag from ledger", "market_id", mirror.MarketID)
		fixed = true
	}

	if truth.GreenPool != mirror.GreenPool || truth.RedPool != mirror.RedPool {
		if err := r.markets.UpdatePools(ctx, mirror.MarketID, truth.GreenPool, truth.RedPool); err != nil {
			return false, fmt.Errorf("repair pools for %d: %w", mirror.MarketID, err)
		}
		r.logger.Warn("repaired pools from ledger",
			"market_id", mirror.MarketID,
			"green_pool", truth.GreenPool,
			"red_pool", truth.RedPool)
		fixed = true
	}

	return fixed, nil
}
