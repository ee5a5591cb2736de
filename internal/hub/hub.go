package hub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tradingview-adapter/internal/metrics"
	"github.com/Checker-Finance/tradingview-adapter/pkg/model"
)

// Transport identifies the delivery channel a session is attached to.
type Transport string

const (
	TransportSSE Transport = "sse"
	TransportWS  Transport = "ws"
)

// sendBuffer bounds how far a slow consumer may fall behind before it is
// dropped. Nothing is buffered beyond this; delivery is lossy.
const sendBuffer = 64

// Session is one live viewer connection. The owning transport drains
// Receive until the channel is closed, and calls Unsubscribe on any
// write failure.
type Session struct {
	transport Transport
	send      chan []byte
	closeOnce sync.Once
}

// Transport returns the session's delivery channel kind.
func (s *Session) Transport() Transport {
	return s.transport
}

// Receive returns the channel of serialized frames for this session.
// It is closed when the session is unsubscribed.
func (s *Session) Receive() <-chan []byte {
	return s.send
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.send) })
}

// Hub owns the registry of live fan-out sessions across both transports
// and multicasts accepted signals to all of them.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	logger   *zap.Logger
}

// New creates an empty Hub.
func New(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[*Session]struct{}),
		logger:   logger,
	}
}

// Subscribe registers a new session for the given transport.
func (h *Hub) Subscribe(t Transport) *Session {
	s := &Session{
		transport: t,
		send:      make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	total := len(h.sessions)
	h.mu.Unlock()

	metrics.FanoutSessions.WithLabelValues(string(t)).Inc()
	h.logger.Debug("hub.subscribed",
		zap.String("transport", string(t)),
		zap.Int("total", total))
	return s
}

// Unsubscribe removes a session and closes its channel. Safe to call
// more than once and on sessions already dropped by a publish sweep.
func (h *Hub) Unsubscribe(s *Session) {
	if s == nil {
		return
	}
	h.mu.Lock()
	_, ok := h.sessions[s]
	if ok {
		delete(h.sessions, s)
	}
	total := len(h.sessions)
	h.mu.Unlock()

	if !ok {
		return
	}
	s.close()
	metrics.FanoutSessions.WithLabelValues(string(s.transport)).Dec()
	h.logger.Debug("hub.unsubscribed",
		zap.String("transport", string(s.transport)),
		zap.Int("total", total))
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// wsFrame is the envelope the websocket channel wraps events in.
type wsFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Publish serializes the event once per transport framing and hands it to
// every live session. Sends never block: a session whose buffer is full
// is dropped so one stalled viewer cannot hold up the ingest path.
func (h *Hub) Publish(event model.SignalEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("hub.marshal_failed", zap.Error(err))
		metrics.IncError("hub", "marshal_failed")
		return
	}

	var wsPayload []byte // built lazily, only if a ws session is live

	var stalled []*Session
	h.mu.RLock()
	for s := range h.sessions {
		frame := payload
		if s.transport == TransportWS {
			if wsPayload == nil {
				wsPayload, _ = json.Marshal(wsFrame{Type: "order", Data: payload})
			}
			frame = wsPayload
		}
		select {
		case s.send <- frame:
		default:
			stalled = append(stalled, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range stalled {
		h.logger.Warn("hub.session_stalled",
			zap.String("transport", string(s.transport)))
		metrics.IncFanoutDrop(string(s.transport))
		h.Unsubscribe(s)
	}
}

// Close drops every session; used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.Unsubscribe(s)
	}
}
