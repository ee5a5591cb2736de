package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tradingview-adapter/internal/hub"
	"github.com/Checker-Finance/tradingview-adapter/internal/signal"
	"github.com/Checker-Finance/tradingview-adapter/pkg/model"
)

func jsonBody(s string) io.Reader {
	return strings.NewReader(s)
}

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// Full ingest-to-claim flow over the real routes: a signed signal comes
// in, one viewer sees it live, the EA claims it exactly once.
func TestIngestClaimFlow(t *testing.T) {
	const secret = "hmac-secret"

	st := &memStore{}
	fanout := hub.New(zap.NewNop())

	webhookHandler := signal.NewWebhookHandler(
		zap.NewNop(), st, fanout, nil, secret, true, "FX:GBPUSD", "")
	ordersHandler := NewOrdersHandler(zap.NewNop(), st, NewKeyAuth(goodKey))
	sseHandler := NewSSEHandler(fanout, 10*time.Second, zap.NewNop())

	app := fiber.New()
	RegisterRoutes(app, nil, st, webhookHandler, ordersHandler, sseHandler)

	viewer := fanout.Subscribe(hub.TransportSSE)
	defer fanout.Unsubscribe(viewer)

	// --- producer posts a signed signal ---
	body := []byte(`{"side":"BUY","size":0.5}`)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)

	req := httptest.NewRequest("POST", "/webhook", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var posted struct {
		Status string `json:"status"`
		ID     int64  `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&posted))
	assert.Equal(t, "ok", posted.Status)
	assert.Equal(t, int64(1), posted.ID)

	// --- the connected viewer received exactly that order ---
	select {
	case frame := <-viewer.Receive():
		var ev model.SignalEvent
		require.NoError(t, json.Unmarshal(frame, &ev))
		assert.Equal(t, int64(1), ev.ID)
		assert.Equal(t, "buy", ev.Side)
	case <-time.After(time.Second):
		t.Fatal("viewer never received the event")
	}

	// --- the EA claims the order ---
	resp, err = app.Test(httptest.NewRequest("GET", "/api/get-orders?key="+goodKey, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var claimed struct {
		Orders []model.Order `json:"orders"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&claimed))
	require.Len(t, claimed.Orders, 1)
	assert.Equal(t, int64(1), claimed.Orders[0].ID)
	assert.Equal(t, "buy", claimed.Orders[0].Side)
	assert.True(t, claimed.Orders[0].Size.Equal(decimalFromString(t, "0.5")))
	assert.Equal(t, model.StatusPending, claimed.Orders[0].Status)

	// --- repeating the poll returns nothing ---
	resp, err = app.Test(httptest.NewRequest("GET", "/api/get-orders?key="+goodKey, nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"orders":[]}`, string(raw))

	// --- the EA reports the outcome ---
	resp, err = app.Test(httptest.NewRequest("POST", "/api/report?key="+goodKey,
		jsonBody(`{"order_id":1,"result":"filled"}`)))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Len(t, st.reports, 1)
}

func TestHealthEndpoint(t *testing.T) {
	st := &memStore{}
	fanout := hub.New(zap.NewNop())

	webhookHandler := signal.NewWebhookHandler(
		zap.NewNop(), st, fanout, nil, "", false, "FX:GBPUSD", "")
	ordersHandler := NewOrdersHandler(zap.NewNop(), st, NewKeyAuth(goodKey))
	sseHandler := NewSSEHandler(fanout, 10*time.Second, zap.NewNop())

	app := fiber.New()
	RegisterRoutes(app, nil, st, webhookHandler, ordersHandler, sseHandler)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), `"status":"ok"`)
}
