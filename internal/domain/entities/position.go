package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state reported by the signals service
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Position is the read-only view of a trading position owned by the signals
// service. Distributions reference positions by ID only; the position can be
// closed or deleted without this service being told.
type Position struct {
	ID            uuid.UUID       `json:"id"`
	Symbol        string          `json:"symbol"`
	Status        PositionStatus  `json:"status"`
	LastPrice     decimal.Decimal `json:"last_price"`
	LastPricedAt  time.Time       `json:"last_priced_at"`
}

// IsClosed reports whether the backing position has finished its lifecycle
func (p *Position) IsClosed() bool {
	return p.Status == PositionStatusClosed
}

// ErrorResponse is the standard error payload for the HTTP surface
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
