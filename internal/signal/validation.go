package signal

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/tradingview-adapter/pkg/model"
)

// FieldError describes a single violated rule on an inbound signal field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated field rule, not just the first.
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Details))
	for i, d := range e.Details {
		msgs[i] = d.Field + ": " + d.Message
	}
	return "invalid payload: " + strings.Join(msgs, "; ")
}

var minSize = decimal.RequireFromString("0.0001")
var defaultSize = decimal.RequireFromString("0.01")

// ParseSignal validates and normalizes a raw webhook body into an order
// request. Unknown fields are ignored. It is a pure function of its input:
// no side effects, all violations collected.
func ParseSignal(body []byte, defaultSymbol string) (*model.OrderRequest, *ValidationError) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, &ValidationError{Details: []FieldError{
			{Field: "body", Message: "must be a JSON object"},
		}}
	}

	var details []FieldError
	req := &model.OrderRequest{Size: defaultSize}

	// side: required, buy|sell, case-insensitive
	switch v := raw["side"].(type) {
	case string:
		side := strings.ToLower(strings.TrimSpace(v))
		if side != model.SideBuy && side != model.SideSell {
			details = append(details, FieldError{Field: "side", Message: "must be one of [buy, sell]"})
		} else {
			req.Side = side
		}
	case nil:
		details = append(details, FieldError{Field: "side", Message: "is required"})
	default:
		details = append(details, FieldError{Field: "side", Message: "must be a string"})
	}

	// size: optional, numeric, >= 0.0001
	if v, ok := raw["size"]; ok && v != nil {
		if f, ok := v.(float64); ok {
			size := decimal.NewFromFloat(f)
			if size.LessThan(minSize) {
				details = append(details, FieldError{Field: "size", Message: "must be greater than or equal to 0.0001"})
			} else {
				req.Size = size
			}
		} else {
			details = append(details, FieldError{Field: "size", Message: "must be a number"})
		}
	}

	req.Price = optionalDecimal(raw, "price", &details)
	req.StopLoss = optionalDecimal(raw, "sl", &details)
	req.TakeProfit = optionalDecimal(raw, "tp", &details)
	req.RSI = optionalDecimal(raw, "rsi", &details)

	// symbol: optional string, defaults to the configured instrument;
	// the TradingView exchange prefix is not meaningful downstream.
	symbol := defaultSymbol
	if v, ok := raw["symbol"]; ok && v != nil {
		if s, ok := v.(string); ok {
			symbol = s
		} else {
			details = append(details, FieldError{Field: "symbol", Message: "must be a string"})
		}
	}
	req.Symbol = strings.TrimPrefix(symbol, "FX:")

	if v, ok := raw["engine"]; ok && v != nil {
		if s, ok := v.(string); ok {
			req.Engine = s
		} else {
			details = append(details, FieldError{Field: "engine", Message: "must be a string"})
		}
	}

	if len(details) > 0 {
		return nil, &ValidationError{Details: details}
	}
	return req, nil
}

func optionalDecimal(raw map[string]any, field string, details *[]FieldError) decimal.NullDecimal {
	v, ok := raw[field]
	if !ok || v == nil {
		return decimal.NullDecimal{}
	}
	f, ok := v.(float64)
	if !ok {
		*details = append(*details, FieldError{Field: field, Message: "must be a number"})
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(f), Valid: true}
}
