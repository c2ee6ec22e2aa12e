package account

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create provisions the caller's account.
func (h *Handler) Create(c *fiber.Ctx) error {
	acct, err := h.service.Create(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toAccountResponse(acct))
}

// Me returns the caller's account and balance.
func (h *Handler) Me(c *fiber.Ctx) error {
	acct, err := h.service.Get(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(toAccountResponse(acct))
}

// SetPIN sets or rotates the caller's transaction PIN.
func (h *Handler) SetPIN(c *fiber.Ctx) error {
	var req pinRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetPIN(c.UserContext(), middleware.CallerID(c), req.PIN, req.CurrentPIN); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Transactions lists the caller's records filtered by kind, status and creation time.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	filter := ledger.ListFilter{
		Kind:   ledger.Kind(c.Query("kind")),
		Status: ledger.Status(c.Query("status")),
		Limit:  c.QueryInt("limit"),
	}
	if before := c.Query("before"); before != "" {
		t, err := time.Parse(time.RFC3339Nano, before)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "before must be an RFC3339 timestamp")
		}
		filter.Before = t
	}

	records, err := h.service.Transactions(c.UserContext(), middleware.CallerID(c), filter)
	if err != nil {
		return err
	}
	out := make([]RecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, ToRecordResponse(r))
	}
	resp := fiber.Map{"transactions": out}
	if n := len(records); n > 0 {
		resp["next_before"] = records[n-1].CreatedAt.Format(time.RFC3339Nano)
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Transaction returns one of the caller's records.
func (h *Handler) Transaction(c *fiber.Ctx) error {
	rec, err := h.service.Transaction(c.UserContext(), middleware.CallerID(c), c.Params("reference"))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(ToRecordResponse(rec))
}
