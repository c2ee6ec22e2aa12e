package funding

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ledger/internal/account"
	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/middleware"
	"github.com/congo-pay/congo_ledger/internal/money"
)

// Handler exposes HTTP endpoints for deposits.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Initialize opens a gateway checkout for a deposit into the caller's account.
func (h *Handler) Initialize(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.ToMinor(req.Amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	reference := req.Reference
	if reference == "" {
		reference = middleware.IdempotencyKey(c)
	}

	result, err := h.service.Initialize(c.UserContext(), DepositInput{
		AccountID: middleware.CallerID(c),
		Amount:    amount,
		Email:     req.Email,
		Reference: reference,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(DepositResponse{
		RecordResponse:   account.ToRecordResponse(result.Record),
		AuthorizationURL: result.AuthorizationURL,
	})
}

// Verify settles a pending deposit from the gateway's view of the charge.
func (h *Handler) Verify(c *fiber.Ctx) error {
	rec, err := h.service.Verify(c.UserContext(), middleware.CallerID(c), c.Params("reference"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(account.ToRecordResponse(rec))
}

// Cancel abandons a pending deposit.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	rec, err := h.service.Cancel(c.UserContext(), middleware.CallerID(c), c.Params("reference"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(account.ToRecordResponse(rec))
}
