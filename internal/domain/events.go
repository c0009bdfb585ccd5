package domain

import (
	"encoding/json"
	"time"
)

// Signal bus channels. The websocket feed subscribes to "events:*"; the
// stream keeps a durable trail of the same payloads.
const (
	EventMarketCreated = "events:market_created"
	EventMarketSettled = "events:market_settled"
	EventBetRecorded   = "events:bet_recorded"
	EventClaimRecorded = "events:claim_recorded"

	EventStream = "stream:events"
)

// Event is the payload published on the signal bus for every lifecycle
// transition. Fields that do not apply to a given type are zero.
type Event struct {
	Type       string    `json:"type"`
	MarketID   uint64    `json:"market_id"`
	Wallet     string    `json:"wallet,omitempty"`
	Side       Side      `json:"side,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	ClosePrice uint64    `json:"close_price,omitempty"`
	Signature  string    `json:"signature,omitempty"`
	At         time.Time `json:"at"`
}

// Marshal encodes the event for the bus. Encoding an Event cannot fail, so
// the error is swallowed here rather than at every publish site.
func (e Event) Marshal() []byte {
	data, _ := json.Marshal(e)
	return data
}
