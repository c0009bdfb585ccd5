package handler

import (
	"context"
	"net/http"

	"github.com/candlefi/candle-markets/internal/domain"
)

// MarketCreator is the manual creation trigger. Satisfied by the lifecycle
// orchestrator.
type MarketCreator interface {
	ForceCreate(ctx context.Context) (domain.Market, error)
}

// LifecycleHandler exposes admin lifecycle operations.
type LifecycleHandler struct {
	creator MarketCreator
}

// NewLifecycleHandler creates a LifecycleHandler.
func NewLifecycleHandler(creator MarketCreator) *LifecycleHandler {
	return &LifecycleHandler{creator: creator}
}

// ForceCreate creates the market for the current window if it does not exist
// yet. Idempotent: repeat calls return the existing market.
// POST /api/markets/force-create
func (h *LifecycleHandler) ForceCreate(w http.ResponseWriter, r *http.Request) {
	m, err := h.creator.ForceCreate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":  m.MarketID,
		"asset":      m.Asset,
		"start_time": m.StartTime.Unix(),
		"end_time":   m.EndTime.Unix(),
		"lock_time":  m.LockTime.Unix(),
		"open_price": m.OpenPrice,
	})
}
