package ledger

import "time"

// Kind classifies a transaction record from the point of view of its account.
type Kind string

const (
	KindSend     Kind = "send"
	KindReceive  Kind = "receive"
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
)

// Debits reports whether the record removes funds from its account.
func (k Kind) Debits() bool {
	return k == KindSend || k == KindWithdraw
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSend, KindReceive, KindDeposit, KindWithdraw:
		return true
	}
	return false
}

// Status is the lifecycle state of a transaction record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusSuccessful Status = "successful"
	StatusFailed     Status = "failed"
	StatusDeclined   Status = "declined"
	StatusReversed   Status = "reversed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccessful, StatusFailed, StatusDeclined, StatusReversed, StatusCancelled:
		return true
	}
	return false
}

// ProviderRefs are the account's identifiers at the payment gateway. All optional.
type ProviderRefs struct {
	CustomerCode   string
	VirtualAccount string
	RecipientCode  string
	// RecipientDestination is the bank destination RecipientCode was created for.
	RecipientDestination string
}

// Account holds the single balance scalar of a user.
type Account struct {
	ID        string
	Balance   int64
	PINHash   []byte
	Provider  ProviderRefs
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPIN reports whether a transaction PIN has been set.
func (a Account) HasPIN() bool {
	return len(a.PINHash) > 0
}

// ExternalRecipient describes an off-platform bank destination.
type ExternalRecipient struct {
	BankCode      string
	AccountNumber string
	AccountName   string
}

// Destination renders the recipient as a stable key.
func (r ExternalRecipient) Destination() string {
	return r.BankCode + ":" + r.AccountNumber
}

// Record is one account's view of a money movement. Core fields are immutable;
// only Status, StatusUpdatedAt and ProviderTransactionID change after creation.
type Record struct {
	Reference             string
	Correlation           string
	Kind                  Kind
	Amount                int64
	Fee                   int64
	Status                Status
	AccountID             string
	CounterpartyAccountID string
	Recipient             *ExternalRecipient
	ProviderTransactionID string
	Narration             string
	CreatedAt             time.Time
	StatusUpdatedAt       time.Time
}

// Debit is the total amount removed from the account by a debiting record.
func (r Record) Debit() int64 {
	return r.Amount + r.Fee
}

// ListFilter narrows a listing of an account's records.
type ListFilter struct {
	Kind   Kind
	Status Status
	Before time.Time
	Limit  int
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (f ListFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	}
	return f.Limit
}

func (f ListFilter) matches(r Record) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.Before.IsZero() && !r.CreatedAt.Before(f.Before) {
		return false
	}
	return true
}
