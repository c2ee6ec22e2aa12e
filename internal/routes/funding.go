package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ledger/internal/funding"
)

// RegisterFundingRoutes wires deposit endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, limiter fiber.Handler) {
	r.Post("/deposits", limiter, h.Initialize)
	r.Post("/deposits/:reference/verify", h.Verify)
	r.Post("/deposits/:reference/cancel", h.Cancel)
}
