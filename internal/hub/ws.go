package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tradingview-adapter/internal/metrics"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingPeriod   = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced at the reverse proxy.
		return true
	},
}

// WSServer runs the always-on websocket broadcast listener on its own
// port, next to the HTTP API, matching the split the EA bridge expects.
type WSServer struct {
	hub    *Hub
	logger *zap.Logger
	server *http.Server
}

// NewWSServer creates a websocket broadcast server bound to the hub.
func NewWSServer(h *Hub, logger *zap.Logger) *WSServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSServer{hub: h, logger: logger}
}

// Listen serves websocket upgrades on the given port until Shutdown.
func (ws *WSServer) Listen(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ws.handleConn)

	ws.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and closes the listener.
func (ws *WSServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

func (ws *WSServer) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Warn("ws.upgrade_failed", zap.Error(err))
		metrics.IncError("ws", "upgrade_failed")
		return
	}

	hello, _ := json.Marshal(map[string]any{
		"type": "hello",
		"ts":   time.Now().UnixMilli(),
	})
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, hello); err != nil {
		ws.logger.Warn("ws.hello_failed", zap.Error(err))
		_ = conn.Close()
		return
	}

	sess := ws.hub.Subscribe(TransportWS)
	ws.logger.Info("ws.client_connected", zap.String("remote", conn.RemoteAddr().String()))

	go ws.writePump(conn, sess)
	go ws.readPump(conn, sess)
}

// writePump drains the session channel onto the connection. Any write
// error deregisters the session; remaining subscribers are unaffected.
func (ws *WSServer) writePump(conn *websocket.Conn, sess *Session) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		ws.hub.Unsubscribe(sess)
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sess.Receive():
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				ws.logger.Debug("ws.write_failed", zap.Error(err))
				metrics.IncFanoutDrop(string(TransportWS))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is noticing the close.
func (ws *WSServer) readPump(conn *websocket.Conn, sess *Session) {
	defer func() {
		ws.hub.Unsubscribe(sess)
		_ = conn.Close()
	}()

	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Debug("ws.read_error", zap.Error(err))
			}
			return
		}
	}
}
