package ledger

import "errors"

var (
	// ErrInvalidAmount is returned when an amount is not strictly positive or a fee is negative.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrPinNotSet is returned when a PIN-gated operation runs against an account without a PIN.
	ErrPinNotSet = errors.New("transaction pin not set")
	// ErrInvalidPin is returned when the supplied PIN does not match the stored hash.
	ErrInvalidPin = errors.New("invalid transaction pin")
	// ErrInsufficientBalance occurs when the account cannot cover amount plus fee.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrCounterpartyNotFound is returned when the receiving account does not exist.
	ErrCounterpartyNotFound = errors.New("counterparty not found")
	// ErrDuplicateReference indicates a record with the reference already exists.
	ErrDuplicateReference = errors.New("duplicate reference")
	// ErrInvalidStateTransition is returned for transitions the state machine forbids.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrInvalidSignature is returned when a provider event fails signature verification.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrProviderUnavailable covers timeouts, transport failures and 5xx from the gateway.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrProviderRejected is returned when the gateway answers with a definitive failure.
	ErrProviderRejected = errors.New("payment provider rejected request")

	// ErrInvalidRequest covers malformed input such as a bad reference or missing payout recipient.
	ErrInvalidRequest = errors.New("invalid request")

	ErrAccountNotFound = errors.New("account not found")
	ErrRecordNotFound  = errors.New("transaction not found")
	ErrSameAccount     = errors.New("cannot transfer to the same account")
	ErrAccountExists   = errors.New("account already exists")
	// ErrConflict signals a concurrent-update abort; the whole unit of work rolled back.
	ErrConflict = errors.New("concurrent update conflict")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidAmount, "invalid_amount"},
	{ErrPinNotSet, "pin_not_set"},
	{ErrInvalidPin, "invalid_pin"},
	{ErrInsufficientBalance, "insufficient_balance"},
	{ErrCounterpartyNotFound, "counterparty_not_found"},
	{ErrDuplicateReference, "duplicate_reference"},
	{ErrInvalidStateTransition, "invalid_state_transition"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrProviderUnavailable, "provider_unavailable"},
	{ErrProviderRejected, "provider_rejected"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrAccountNotFound, "account_not_found"},
	{ErrRecordNotFound, "transaction_not_found"},
	{ErrSameAccount, "same_account"},
	{ErrAccountExists, "account_exists"},
	{ErrConflict, "conflict"},
}

// Code maps an error to a stable machine readable code. Unknown errors map to "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// Retryable reports whether the caller may retry with the same reference.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrProviderUnavailable)
}
