package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SignalEvent is the payload fanned out to SSE and websocket viewers
// when a signal is accepted. Field names match the original producer
// protocol the frontend already parses.
type SignalEvent struct {
	ID         int64               `json:"id"`
	Symbol     string              `json:"symbol"`
	Side       string              `json:"side"`
	Price      decimal.NullDecimal `json:"price"`
	Size       decimal.Decimal     `json:"size"`
	StopLoss   decimal.NullDecimal `json:"sl"`
	TakeProfit decimal.NullDecimal `json:"tp"`
	Status     string              `json:"status"`
	Time       time.Time           `json:"time"`
	Engine     string              `json:"engine"`
}

// NewSignalEvent builds the fan-out payload for a freshly persisted order.
func NewSignalEvent(o *Order, engine string) SignalEvent {
	if engine == "" {
		engine = "webhook"
	}
	return SignalEvent{
		ID:         o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Price:      o.Price,
		Size:       o.Size,
		StopLoss:   o.StopLoss,
		TakeProfit: o.TakeProfit,
		Status:     o.Status,
		Time:       o.CreatedAt,
		Engine:     engine,
	}
}

// Envelope is the canonical event wrapper published to NATS so downstream
// services can consume accepted signals off the bus.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	Topic         string          `json:"topic"`
	EventType     string          `json:"event_type"`
	Version       string          `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}
