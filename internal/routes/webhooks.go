package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ledger/internal/reconcile"
)

// RegisterWebhookRoutes wires the signed gateway event endpoint.
func RegisterWebhookRoutes(app *fiber.App, h *reconcile.Handler) {
	app.Post("/webhooks/gateway", h.Webhook)
}
