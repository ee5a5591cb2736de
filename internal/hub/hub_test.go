package hub

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tradingview-adapter/pkg/model"
)

func testEvent(id int64) model.SignalEvent {
	return model.SignalEvent{
		ID:     id,
		Symbol: "GBPUSD",
		Side:   model.SideBuy,
		Status: model.StatusPending,
		Time:   time.Now().UTC(),
		Engine: "webhook",
	}
}

func recv(t *testing.T, s *Session) []byte {
	t.Helper()
	select {
	case frame, ok := <-s.Receive():
		require.True(t, ok, "session channel closed")
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestPublish_ReachesAllTransports(t *testing.T) {
	h := New(zap.NewNop())
	sse := h.Subscribe(TransportSSE)
	ws := h.Subscribe(TransportWS)

	h.Publish(testEvent(1))

	var sseEvent model.SignalEvent
	require.NoError(t, json.Unmarshal(recv(t, sse), &sseEvent))
	assert.Equal(t, int64(1), sseEvent.ID)

	// websocket sessions get the event wrapped in an order frame
	var frame struct {
		Type string            `json:"type"`
		Data model.SignalEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recv(t, ws), &frame))
	assert.Equal(t, "order", frame.Type)
	assert.Equal(t, int64(1), frame.Data.ID)
}

func TestPublish_DropsOnlyStalledSession(t *testing.T) {
	h := New(zap.NewNop())
	healthy1 := h.Subscribe(TransportSSE)
	healthy2 := h.Subscribe(TransportSSE)
	stalled := h.Subscribe(TransportSSE)

	// Fill the stalled session's buffer without draining it.
	for i := 0; i < sendBuffer; i++ {
		h.Publish(testEvent(int64(i)))
		recv(t, healthy1)
		recv(t, healthy2)
	}
	require.Equal(t, 3, h.Count())

	// One more publish overflows only the stalled session.
	h.Publish(testEvent(999))
	assert.Equal(t, 2, h.Count())

	var ev model.SignalEvent
	require.NoError(t, json.Unmarshal(recv(t, healthy1), &ev))
	assert.Equal(t, int64(999), ev.ID)
	require.NoError(t, json.Unmarshal(recv(t, healthy2), &ev))
	assert.Equal(t, int64(999), ev.ID)

	// The dropped session's channel is closed.
	drained := 0
	for range stalled.Receive() {
		drained++
	}
	assert.Equal(t, sendBuffer, drained)

	// A subsequent publish reaches only the remaining sessions.
	h.Publish(testEvent(1000))
	require.NoError(t, json.Unmarshal(recv(t, healthy1), &ev))
	assert.Equal(t, int64(1000), ev.ID)
	require.NoError(t, json.Unmarshal(recv(t, healthy2), &ev))
	assert.Equal(t, int64(1000), ev.ID)
}

func TestPublish_PerSessionOrder(t *testing.T) {
	h := New(zap.NewNop())
	s := h.Subscribe(TransportSSE)

	for i := 1; i <= 10; i++ {
		h.Publish(testEvent(int64(i)))
	}
	for i := 1; i <= 10; i++ {
		var ev model.SignalEvent
		require.NoError(t, json.Unmarshal(recv(t, s), &ev))
		assert.Equal(t, int64(i), ev.ID)
	}
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	h := New(zap.NewNop())
	s := h.Subscribe(TransportWS)
	require.Equal(t, 1, h.Count())

	h.Unsubscribe(s)
	h.Unsubscribe(s)
	h.Unsubscribe(nil)
	assert.Equal(t, 0, h.Count())

	_, ok := <-s.Receive()
	assert.False(t, ok)

	// publishing after removal is a no-op for this session
	h.Publish(testEvent(1))
}

func TestHub_ConcurrentChurn(t *testing.T) {
	h := New(zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := h.Subscribe(TransportSSE)
				h.Publish(testEvent(int64(j)))
				h.Unsubscribe(s)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, h.Count())
}

func TestClose_DropsEverySession(t *testing.T) {
	h := New(zap.NewNop())
	a := h.Subscribe(TransportSSE)
	b := h.Subscribe(TransportWS)

	h.Close()
	assert.Equal(t, 0, h.Count())

	_, okA := <-a.Receive()
	_, okB := <-b.Receive()
	assert.False(t, okA)
	assert.False(t, okB)
}
