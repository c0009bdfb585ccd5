package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
	"github.com/candlefi/candle-markets/internal/service"
)

// marketResponse is the wire shape of a market. Prices stay in fixed-point
// integer units; clients divide by the price scale for display.
type marketResponse struct {
	MarketID         uint64  `json:"market_id"`
	Asset            string  `json:"asset"`
	State            string  `json:"state"`
	StartTime        int64   `json:"start_time"`
	EndTime          int64   `json:"end_time"`
	LockTime         int64   `json:"lock_time"`
	OpenPrice        uint64  `json:"open_price"`
	ClosePrice       *uint64 `json:"close_price,omitempty"`
	GreenPool        uint64  `json:"green_pool"`
	RedPool          uint64  `json:"red_pool"`
	VirtualLiquidity uint64  `json:"virtual_liquidity"`
	Settled          bool    `json:"settled"`
}

func toMarketResponse(v service.MarketView) marketResponse {
	return marketResponse{
		MarketID:         v.MarketID,
		Asset:            v.Asset,
		State:            string(v.State),
		StartTime:        v.StartTime.Unix(),
		EndTime:          v.EndTime.Unix(),
		LockTime:         v.LockTime.Unix(),
		OpenPrice:        v.OpenPrice,
		ClosePrice:       v.ClosePrice,
		GreenPool:        v.GreenPool,
		RedPool:          v.RedPool,
		VirtualLiquidity: v.VirtualLiquidity,
		Settled:          v.Settled,
	}
}

// MarketHandler serves market reads and bet quotes.
type MarketHandler struct {
	svc *service.MarketService
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc *service.MarketService) *MarketHandler {
	return &MarketHandler{svc: svc}
}

// List returns every active market.
// GET /api/markets
func (h *MarketHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]marketResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toMarketResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"markets": out,
		"count":   len(out),
	})
}

// Latest returns the most recently started market.
// GET /api/markets/latest
func (h *MarketHandler) Latest(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Latest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(v))
}

// Get returns one market by id.
// GET /api/markets/{id}
func (h *MarketHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	v, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMarketResponse(v))
}

// quoteResponse previews the tier a placement would snapshot right now.
type quoteResponse struct {
	MarketID       uint64 `json:"market_id"`
	Side           string `json:"side"`
	Amount         uint64 `json:"amount"`
	Weight         uint64 `json:"weight"`
	EffectiveStake uint64 `json:"effective_stake"`
	QuotedAt       int64  `json:"quoted_at"`
}

// Quote previews the weight and effective stake for a hypothetical bet.
// GET /api/markets/{id}/quote?side=UP&amount=1000
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	side := domain.Side(r.URL.Query().Get("side"))
	if !side.Valid() {
		writeBadRequest(w, "side must be UP or DOWN")
		return
	}
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount == 0 {
		writeBadRequest(w, "amount must be a positive integer")
		return
	}

	bet, err := h.svc.BetQuote(r.Context(), id, side, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{
		MarketID:       bet.MarketID,
		Side:           string(bet.Side),
		Amount:         bet.Amount,
		Weight:         bet.Weight,
		EffectiveStake: bet.EffectiveStake,
		QuotedAt:       time.Now().UTC().Unix(),
	})
}
