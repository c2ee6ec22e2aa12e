package account

import (
	"time"

	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/money"
)

type pinRequest struct {
	PIN        string `json:"pin"`
	CurrentPIN string `json:"current_pin"`
}

type accountResponse struct {
	ID             string    `json:"id"`
	Balance        string    `json:"balance"`
	BalanceMinor   int64     `json:"balance_minor"`
	PINSet         bool      `json:"pin_set"`
	VirtualAccount string    `json:"virtual_account,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Balance:        money.Format(a.Balance),
		BalanceMinor:   a.Balance,
		PINSet:         a.HasPIN(),
		VirtualAccount: a.Provider.VirtualAccount,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// RecordResponse is the wire form of a transaction record, shared by every handler.
type RecordResponse struct {
	Reference             string     `json:"reference"`
	Kind                  string     `json:"kind"`
	Status                string     `json:"status"`
	Amount                string     `json:"amount"`
	Fee                   string     `json:"fee"`
	CounterpartyAccountID string     `json:"counterparty_account_id,omitempty"`
	Recipient             *Recipient `json:"recipient,omitempty"`
	ProviderTransactionID string     `json:"provider_transaction_id,omitempty"`
	Narration             string     `json:"narration,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	StatusUpdatedAt       time.Time  `json:"status_updated_at"`
}

// Recipient is the wire form of an external bank destination.
type Recipient struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name,omitempty"`
}

// ToRecordResponse converts a record for the HTTP API.
func ToRecordResponse(r ledger.Record) RecordResponse {
	out := RecordResponse{
		Reference:             r.Reference,
		Kind:                  string(r.Kind),
		Status:                string(r.Status),
		Amount:                money.Format(r.Amount),
		Fee:                   money.Format(r.Fee),
		CounterpartyAccountID: r.CounterpartyAccountID,
		ProviderTransactionID: r.ProviderTransactionID,
		Narration:             r.Narration,
		CreatedAt:             r.CreatedAt,
		StatusUpdatedAt:       r.StatusUpdatedAt,
	}
	if r.Recipient != nil {
		out.Recipient = &Recipient{
			BankCode:      r.Recipient.BankCode,
			AccountNumber: r.Recipient.AccountNumber,
			AccountName:   r.Recipient.AccountName,
		}
	}
	return out
}
