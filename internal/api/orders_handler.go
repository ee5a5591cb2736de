package api

import (
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tradingview-adapter/internal/metrics"
	"github.com/Checker-Finance/tradingview-adapter/internal/store"
	"github.com/Checker-Finance/tradingview-adapter/pkg/model"
)

// OrdersHandler serves the EA-facing claim and report endpoints plus the
// by-id order lookup.
type OrdersHandler struct {
	logger *zap.Logger
	store  store.Store
	auth   *KeyAuth
}

// NewOrdersHandler creates a new OrdersHandler.
func NewOrdersHandler(logger *zap.Logger, st store.Store, auth *KeyAuth) *OrdersHandler {
	return &OrdersHandler{logger: logger, store: st, auth: auth}
}

// ClaimOrders hands every pending order to the polling EA and marks it
// sent in the same store call. At-most-once: a repeat poll gets nothing
// until new signals arrive.
// GET /api/get-orders?key=<API_KEY>
func (h *OrdersHandler) ClaimOrders(c *fiber.Ctx) error {
	if !h.auth.Valid(c.Query("key")) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "invalid key",
		})
	}

	orders, err := h.store.ClaimPending(c.UserContext())
	if err != nil {
		h.logger.Error("claim.query_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "db error",
		})
	}
	if orders == nil {
		orders = []model.Order{}
	}

	if len(orders) > 0 {
		metrics.OrdersClaimedTotal.Add(float64(len(orders)))
		h.logger.Info("claim.served", zap.Int("count", len(orders)))
	}

	return c.JSON(fiber.Map{"orders": orders})
}

// SubmitReport appends an opaque execution report from the EA. The
// payload is stored as-is; correlation to an order is the EA's business.
// POST /api/report?key=<API_KEY>
func (h *OrdersHandler) SubmitReport(c *fiber.Ctx) error {
	if !h.auth.Valid(c.Query("key")) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "invalid key",
		})
	}

	body := c.Body()
	if !json.Valid(body) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid payload",
		})
	}

	id, err := h.store.AppendReport(c.UserContext(), json.RawMessage(body))
	if err != nil {
		h.logger.Error("report.insert_failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "db error",
		})
	}

	metrics.ReportsTotal.Inc()
	h.logger.Info("report.appended", zap.Int64("report_id", id))
	return c.JSON(fiber.Map{"status": "ok", "id": id})
}

// GetOrder returns one order by id, cache-first.
// GET /api/v1/orders/:id
func (h *OrdersHandler) GetOrder(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid order id",
		})
	}

	order, err := h.store.GetOrder(c.UserContext(), id)
	if err != nil {
		h.logger.Error("orders.get_failed", zap.Int64("id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "db error",
		})
	}
	if order == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not found",
		})
	}

	return c.JSON(fiber.Map{"order": order})
}
