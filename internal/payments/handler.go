package payments

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ledger/internal/account"
	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/middleware"
	"github.com/congo-pay/congo_ledger/internal/money"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	ToAccountID string          `json:"to_account_id"`
	Amount      decimal.Decimal `json:"amount"`
	PIN         string          `json:"pin"`
	Reference   string          `json:"reference"`
	Narration   string          `json:"narration"`
}

type payoutRequest struct {
	BankCode      string          `json:"bank_code"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	Amount        decimal.Decimal `json:"amount"`
	PIN           string          `json:"pin"`
	Reference     string          `json:"reference"`
	Narration     string          `json:"narration"`
}

type paymentResponse struct {
	Reference string                   `json:"reference"`
	Status    string                   `json:"status"`
	Records   []account.RecordResponse `json:"records"`
}

// P2P processes an account-to-account transfer.
func (h *Handler) P2P(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := minorAmount(req.Amount)
	if err != nil {
		return err
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		AccountID:   middleware.CallerID(c),
		ToAccountID: req.ToAccountID,
		Amount:      amount,
		PIN:         req.PIN,
		Reference:   reference(c, req.Reference),
		Narration:   req.Narration,
	})
	if err != nil {
		return err
	}
	// The recipient's leg is theirs to see.
	return c.Status(http.StatusCreated).JSON(toResponse(ledger.Result{Reference: res.Reference, Records: res.Records[:1]}))
}

// Withdraw pays out to the caller's own bank account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.payout(c, h.service.Withdraw)
}

// BankTransfer pays out to a third-party bank account.
func (h *Handler) BankTransfer(c *fiber.Ctx) error {
	return h.payout(c, h.service.BankTransfer)
}

func (h *Handler) payout(c *fiber.Ctx, run func(context.Context, PayoutInput) (ledger.Result, error)) error {
	var req payoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := minorAmount(req.Amount)
	if err != nil {
		return err
	}

	res, err := run(c.UserContext(), PayoutInput{
		AccountID: middleware.CallerID(c),
		Recipient: ledger.ExternalRecipient{
			BankCode:      req.BankCode,
			AccountNumber: req.AccountNumber,
			AccountName:   req.AccountName,
		},
		Amount:    amount,
		PIN:       req.PIN,
		Reference: reference(c, req.Reference),
		Narration: req.Narration,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(toResponse(res))
}

func minorAmount(d decimal.Decimal) (int64, error) {
	amount, err := money.ToMinor(d)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ledger.ErrInvalidAmount, err)
	}
	return amount, nil
}

func reference(c *fiber.Ctx, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return middleware.IdempotencyKey(c)
}

func toResponse(res ledger.Result) paymentResponse {
	out := paymentResponse{Reference: res.Reference, Status: string(res.Primary().Status)}
	for _, r := range res.Records {
		out.Records = append(out.Records, account.ToRecordResponse(r))
	}
	return out
}
