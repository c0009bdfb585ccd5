// Package handler contains the HTTP handlers for the API server. Handlers
// translate between JSON on the wire and the service layer, and map domain
// errors to HTTP statuses.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/candlefi/candle-markets/internal/domain"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a domain error to its HTTP status and writes the envelope.
// Unrecognized errors become 500s with a generic message so internals do not
// leak to clients.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotConfirmed):
		// The ledger has not confirmed the referenced transaction yet.
		// Retryable, so 422 rather than 409.
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrMarketNotOpen),
		errors.Is(err, domain.ErrMarketLocked),
		errors.Is(err, domain.ErrMarketNotEnded),
		errors.Is(err, domain.ErrNotSettled),
		errors.Is(err, domain.ErrInvalidBetSize):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeBadRequest is for request parsing failures, before any domain error
// exists.
func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// marketIDParam parses the {id} path value as a market id.
func marketIDParam(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

// walletParam reads the required wallet query parameter.
func walletParam(r *http.Request) (string, bool) {
	w := r.URL.Query().Get("wallet")
	return w, w != ""
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
