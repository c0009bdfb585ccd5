package handler

import (
	"net/http"

	"github.com/candlefi/candle-markets/internal/service"
)

// ClaimHandler records confirmed claims into the mirror.
type ClaimHandler struct {
	svc *service.ClaimService
}

// NewClaimHandler creates a ClaimHandler.
func NewClaimHandler(svc *service.ClaimService) *ClaimHandler {
	return &ClaimHandler{svc: svc}
}

type recordClaimRequest struct {
	Wallet    string `json:"wallet"`
	MarketID  uint64 `json:"market_id"`
	Signature string `json:"signature"`
}

type claimResponse struct {
	Wallet    string `json:"wallet"`
	MarketID  uint64 `json:"market_id"`
	Payout    uint64 `json:"payout"`
	Result    string `json:"result"`
	Signature string `json:"signature"`
}

// Record verifies the claim confirmed on the ledger, then flips the mirror
// row and appends the payout and pnl records.
// POST /api/claims
func (h *ClaimHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordClaimRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.Wallet == "" || req.MarketID == 0 || req.Signature == "" {
		writeBadRequest(w, "wallet, market_id and signature required")
		return
	}

	receipt, err := h.svc.RecordClaim(r.Context(), req.Wallet, req.MarketID, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, claimResponse{
		Wallet:    receipt.Wallet,
		MarketID:  receipt.MarketID,
		Payout:    receipt.Payout,
		Result:    string(receipt.Result),
		Signature: receipt.Signature,
	})
}
