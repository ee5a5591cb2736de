package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Checker-Finance/tradingview-adapter/internal/signal"
	"github.com/Checker-Finance/tradingview-adapter/internal/store"
)

// RegisterRoutes wires every HTTP endpoint onto the fiber app.
func RegisterRoutes(app *fiber.App, nc *nats.Conn, st store.Store,
	webhookHandler *signal.WebhookHandler,
	ordersHandler *OrdersHandler,
	sseHandler fiber.Handler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"nats":  "ok",
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if nc != nil {
			if !nc.IsConnected() {
				checks["nats"] = "disconnected"
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			} else if err := nc.FlushTimeout(1 * time.Second); err != nil {
				checks["nats"] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	// Producer-facing ingest
	app.Post("/webhook", webhookHandler.HandleSignal)

	// Viewer-facing push stream
	app.Get("/sse", sseHandler)

	// EA-facing claim/report (static key)
	app.Get("/api/get-orders", ordersHandler.ClaimOrders)
	app.Post("/api/report", ordersHandler.SubmitReport)

	// Order lookup
	v1 := app.Group("/api/v1")
	v1.Get("/orders/:id", ordersHandler.GetOrder)
}
