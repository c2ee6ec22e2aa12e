package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ledger/internal/account"
)

// RegisterAccountRoutes wires account and transaction history endpoints.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Create)
	r.Get("/accounts/me", h.Me)
	r.Put("/accounts/me/pin", h.SetPIN)
	r.Get("/transactions", h.Transactions)
	r.Get("/transactions/:reference", h.Transaction)
}
