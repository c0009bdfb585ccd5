package handler

import (
	"net/http"
	"strconv"

	"github.com/candlefi/candle-markets/internal/service"
)

// PositionHandler serves per-wallet reads.
type PositionHandler struct {
	svc *service.PositionService
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(svc *service.PositionService) *PositionHandler {
	return &PositionHandler{svc: svc}
}

type positionResponse struct {
	MarketID       uint64  `json:"market_id"`
	Side           string  `json:"side"`
	Amount         uint64  `json:"amount"`
	Weight         uint64  `json:"weight"`
	EffectiveStake uint64  `json:"effective_stake"`
	Payout         *uint64 `json:"payout,omitempty"`
	Claimed        bool    `json:"claimed"`
	Settled        bool    `json:"settled"`
	PlacedAt       int64   `json:"placed_at"`
}

// Positions returns every bet the wallet holds.
// GET /api/positions?wallet=...
func (h *PositionHandler) Positions(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(r)
	if !ok {
		writeBadRequest(w, "wallet query parameter required")
		return
	}

	positions, err := h.svc.Positions(r.Context(), wallet)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionResponse{
			MarketID:       p.MarketID,
			Side:           string(p.Side),
			Amount:         p.Amount,
			Weight:         p.Weight,
			EffectiveStake: p.EffectiveStake,
			Payout:         p.Payout,
			Claimed:        p.Claimed,
			Settled:        p.Settled,
			PlacedAt:       p.PlacedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":    wallet,
		"positions": out,
		"count":     len(out),
	})
}

type pnlResponse struct {
	Wallet    string  `json:"wallet"`
	TotalPnL  int64   `json:"total_pnl"`
	TotalBets int64   `json:"total_bets"`
	WinRate   float64 `json:"win_rate"`
	Streak    int64   `json:"streak"`
}

// PnL returns the wallet's settled aggregate.
// GET /api/pnl?wallet=...
func (h *PositionHandler) PnL(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(r)
	if !ok {
		writeBadRequest(w, "wallet query parameter required")
		return
	}

	stats, err := h.svc.PnL(r.Context(), wallet)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pnlResponse{
		Wallet:    stats.Wallet,
		TotalPnL:  stats.TotalPnL,
		TotalBets: stats.TotalBets,
		WinRate:   stats.WinRate,
		Streak:    stats.Streak,
	})
}

type claimableResponse struct {
	MarketID       uint64 `json:"market_id"`
	Side           string `json:"side"`
	Amount         uint64 `json:"amount"`
	EffectiveStake uint64 `json:"effective_stake"`
	Payout         uint64 `json:"payout"`
	Result         string `json:"result"`
}

// Claimable previews every claim the wallet could submit right now. An
// optional market_id narrows the preview to one market.
// GET /api/claimable?wallet=...&market_id=...
func (h *PositionHandler) Claimable(w http.ResponseWriter, r *http.Request) {
	wallet, ok := walletParam(r)
	if !ok {
		writeBadRequest(w, "wallet query parameter required")
		return
	}
	var onlyMarket uint64
	if raw := r.URL.Query().Get("market_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "invalid market_id")
			return
		}
		onlyMarket = id
	}

	claims, err := h.svc.ListClaimable(r.Context(), wallet)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]claimableResponse, 0, len(claims))
	for _, c := range claims {
		if onlyMarket != 0 && c.MarketID != onlyMarket {
			continue
		}
		out = append(out, claimableResponse{
			MarketID:       c.MarketID,
			Side:           string(c.Side),
			Amount:         c.Amount,
			EffectiveStake: c.EffectiveStake,
			Payout:         c.Payout,
			Result:         string(c.Result),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":    wallet,
		"claimable": out,
		"count":     len(out),
	})
}
