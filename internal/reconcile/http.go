package reconcile

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Webhook is the fiber endpoint for gateway events. It acknowledges every
// verified, well-formed delivery so the gateway stops retrying.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns.
	payload := append([]byte(nil), c.Body()...)
	if err := h.HandleEvent(c.UserContext(), payload, c.Get(SignatureHeader)); err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "ok"})
}
