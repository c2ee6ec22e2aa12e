package funding

import (
	"github.com/shopspring/decimal"

	"github.com/congo-pay/congo_ledger/internal/account"
)

// DepositRequest opens a deposit. Amount is in major units.
type DepositRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Email     string          `json:"email"`
	Reference string          `json:"reference"`
}

// DepositResponse represents the API response for deposit actions.
type DepositResponse struct {
	account.RecordResponse
	AuthorizationURL string `json:"authorization_url,omitempty"`
}
