package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSignalEvent(t *testing.T) {
	now := time.Now().UTC()
	o := &Order{
		ID:        12,
		Symbol:    "GBPUSD",
		Side:      SideSell,
		Size:      decimal.RequireFromString("0.02"),
		Status:    StatusPending,
		CreatedAt: now,
	}

	ev := NewSignalEvent(o, "python_v1")
	assert.Equal(t, int64(12), ev.ID)
	assert.Equal(t, "python_v1", ev.Engine)
	assert.Equal(t, now, ev.Time)

	// engine falls back to "webhook" when the producer omitted it
	ev = NewSignalEvent(o, "")
	assert.Equal(t, "webhook", ev.Engine)
}

func TestSignalEvent_NumericWireFormat(t *testing.T) {
	ev := SignalEvent{
		ID:     1,
		Symbol: "GBPUSD",
		Side:   SideBuy,
		Size:   decimal.RequireFromString("0.5"),
		Price:  decimal.NullDecimal{Decimal: decimal.RequireFromString("1.25"), Valid: true},
		Status: StatusPending,
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	// amounts must be plain JSON numbers, price absent means null
	assert.Contains(t, string(data), `"size":0.5`)
	assert.Contains(t, string(data), `"price":1.25`)

	ev.Price = decimal.NullDecimal{}
	data, err = json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"price":null`)
}
