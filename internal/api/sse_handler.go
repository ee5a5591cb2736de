package api

import (
	"bufio"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tradingview-adapter/internal/hub"
	"github.com/Checker-Finance/tradingview-adapter/internal/metrics"
)

// NewSSEHandler returns the long-lived server-push stream handler. The
// first frame is a reconnect-interval directive so EventSource clients
// re-dial on their own after a drop; every accepted signal follows as a
// data frame. Frames the client stops draining eventually stall the
// flush, which deregisters the session.
// GET /sse
func NewSSEHandler(h *hub.Hub, retry time.Duration, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		sess := h.Subscribe(hub.TransportSSE)
		logger.Info("sse.client_connected", zap.String("remote", c.IP()))

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			defer h.Unsubscribe(sess)

			fmt.Fprintf(w, "retry: %d\n\n", retry.Milliseconds())
			if err := w.Flush(); err != nil {
				return
			}

			for frame := range sess.Receive() {
				fmt.Fprintf(w, "data: %s\n\n", frame)
				if err := w.Flush(); err != nil {
					logger.Debug("sse.write_failed", zap.Error(err))
					metrics.IncFanoutDrop(string(hub.TransportSSE))
					return
				}
			}
		}))

		return nil
	}
}
