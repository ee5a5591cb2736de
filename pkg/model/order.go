package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The EA and the browser both parse amounts as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// Order statuses. Transitions are one-way: pending -> sent.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Sides accepted from the producer, normalized to lower case.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order is a persisted trading signal with a store-assigned id and status.
type Order struct {
	ID         int64               `json:"id"`
	Symbol     string              `json:"symbol"`
	Side       string              `json:"side"`
	Price      decimal.NullDecimal `json:"price"`
	Size       decimal.Decimal     `json:"size"`
	StopLoss   decimal.NullDecimal `json:"sl"`
	TakeProfit decimal.NullDecimal `json:"tp"`
	Status     string              `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
}

// OrderRequest is a validated, normalized signal ready for persistence.
// Engine and RSI are informational passthrough for the fan-out payload;
// they are not stored on the order row.
type OrderRequest struct {
	Symbol     string
	Side       string
	Price      decimal.NullDecimal
	Size       decimal.Decimal
	StopLoss   decimal.NullDecimal
	TakeProfit decimal.NullDecimal
	Engine     string
	RSI        decimal.NullDecimal
}
