package handler

import (
	"net/http"

	"github.com/candlefi/candle-markets/internal/service"
)

// BetHandler records confirmed bets into the mirror.
type BetHandler struct {
	svc *service.BetService
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(svc *service.BetService) *BetHandler {
	return &BetHandler{svc: svc}
}

type recordBetRequest struct {
	Wallet   string `json:"wallet"`
	MarketID uint64 `json:"market_id"`
}

type betResponse struct {
	Wallet         string `json:"wallet"`
	MarketID       uint64 `json:"market_id"`
	Side           string `json:"side"`
	Amount         uint64 `json:"amount"`
	Weight         uint64 `json:"weight"`
	EffectiveStake uint64 `json:"effective_stake"`
}

// Record mirrors a bet the wallet already placed on the ledger. The ledger is
// the source of truth; the request only names which account to mirror.
// POST /api/bets
func (h *BetHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Wallet == "" || req.MarketID == 0 {
		writeBadRequest(w, "wallet and market_id required")
		return
	}

	bet, err := h.svc.RecordBet(r.Context(), req.Wallet, req.MarketID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, betResponse{
		Wallet:         bet.Wallet,
		MarketID:       bet.MarketID,
		Side:           string(bet.Side),
		Amount:         bet.Amount,
		Weight:         bet.Weight,
		EffectiveStake: bet.EffectiveStake,
	})
}
