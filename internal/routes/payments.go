package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ledger/internal/payments"
)

// RegisterPaymentRoutes wires transfer and payout endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, limiter fiber.Handler) {
	r.Post("/transfers", limiter, h.P2P)
	r.Post("/transfers/bank", limiter, h.BankTransfer)
	r.Post("/withdrawals", limiter, h.Withdraw)
}
