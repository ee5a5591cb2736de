package signal

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tradingview-adapter/internal/metrics"
	"github.com/Checker-Finance/tradingview-adapter/internal/store"
	"github.com/Checker-Finance/tradingview-adapter/pkg/model"
)

// Broadcaster fans an accepted signal out to live viewer sessions.
type Broadcaster interface {
	Publish(event model.SignalEvent)
}

// EventPublisher mirrors accepted signals onto the message bus.
type EventPublisher interface {
	PublishSignalAccepted(ctx context.Context, event model.SignalEvent) error
}

// WebhookHandler handles incoming signal webhooks from TradingView.
type WebhookHandler struct {
	logger        *zap.Logger
	store         store.Store
	hub           Broadcaster
	publisher     EventPublisher
	secret        string
	hardened      bool
	defaultSymbol string
	sigHeader     string
}

// NewWebhookHandler creates a new WebhookHandler. Signature enforcement is
// active only when hardened is set and a secret is configured.
func NewWebhookHandler(
	logger *zap.Logger,
	st store.Store,
	hub Broadcaster,
	pub EventPublisher,
	secret string,
	hardened bool,
	defaultSymbol string,
	sigHeader string,
) *WebhookHandler {
	if strings.TrimSpace(sigHeader) == "" {
		sigHeader = "X-Signature"
	}
	return &WebhookHandler{
		logger:        logger,
		store:         st,
		hub:           hub,
		publisher:     pub,
		secret:        secret,
		hardened:      hardened,
		defaultSymbol: defaultSymbol,
		sigHeader:     sigHeader,
	}
}

// HandleSignal ingests one signal: verify, validate, persist, fan out.
// POST /webhook
func (h *WebhookHandler) HandleSignal(c *fiber.Ctx) error {
	if h.hardened && h.secret != "" {
		signature := c.Get(h.sigHeader)
		if signature == "" || !VerifySignature(h.secret, signature, c.Body()) {
			h.logger.Warn("webhook.invalid_signature",
				zap.String("header", h.sigHeader))
			metrics.IncSignal("rejected_auth")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid signature",
			})
		}
	}

	req, verr := ParseSignal(c.Body(), h.defaultSymbol)
	if verr != nil {
		h.logger.Warn("webhook.invalid_payload",
			zap.Int("violations", len(verr.Details)))
		metrics.IncSignal("rejected_schema")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid payload",
			"details": verr.Details,
		})
	}

	ctx := c.UserContext()

	order, err := h.store.CreateOrder(ctx, *req)
	if err != nil {
		h.logger.Error("webhook.insert_failed", zap.Error(err))
		metrics.IncSignal("failed_storage")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "db error",
		})
	}

	// The order is durable from here on: fan-out and bus failures are
	// logged but never surfaced to the producer. The EA still picks the
	// order up through the claim endpoint.
	event := model.NewSignalEvent(order, req.Engine)

	if h.hub != nil {
		h.hub.Publish(event)
	}

	if h.publisher != nil {
		if err := h.publisher.PublishSignalAccepted(ctx, event); err != nil {
			h.logger.Warn("webhook.bus_publish_failed",
				zap.Int64("order_id", order.ID),
				zap.Error(err))
		}
	}

	h.logger.Info("webhook.accepted",
		zap.Int64("order_id", order.ID),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side))
	metrics.IncSignal("accepted")

	return c.JSON(fiber.Map{"status": "ok", "id": order.ID})
}
