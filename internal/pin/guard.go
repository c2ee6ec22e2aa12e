package pin

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/congo_ledger/internal/ledger"
)

const (
	minLength = 4
	maxLength = 6
)

// placeholder is compared against when an account has no PIN so both rejections cost one bcrypt round.
var placeholder, _ = bcrypt.GenerateFromPassword([]byte("no-pin-set"), bcrypt.MinCost)

// Guard hashes and verifies transaction PINs. Plaintext PINs never leave it.
type Guard struct {
	store ledger.Store
	cost  int
}

// NewGuard builds a guard storing hashes through store. A zero cost selects bcrypt.DefaultCost.
func NewGuard(store ledger.Store, cost int) *Guard {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Guard{store: store, cost: cost}
}

// Hash validates and hashes a PIN with a fresh salt.
func (g *Guard) Hash(pin string) ([]byte, error) {
	if err := validate(pin); err != nil {
		return nil, err
	}
	return bcrypt.GenerateFromPassword([]byte(pin), g.cost)
}

// Check compares candidate with hash. It returns ledger.ErrPinNotSet when no
// hash is stored and ledger.ErrInvalidPin on mismatch.
func (g *Guard) Check(hash []byte, candidate string) error {
	if len(hash) == 0 {
		_ = bcrypt.CompareHashAndPassword(placeholder, []byte(candidate))
		return ledger.ErrPinNotSet
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(candidate)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ledger.ErrInvalidPin
		}
		return fmt.Errorf("%w: %v", ledger.ErrInvalidPin, err)
	}
	return nil
}

// Verify reports whether candidate matches the PIN stored for the account.
func (g *Guard) Verify(ctx context.Context, accountID, candidate string) (bool, error) {
	account, err := g.store.Account(ctx, accountID)
	if err != nil {
		return false, err
	}
	switch err := g.Check(account.PINHash, candidate); {
	case err == nil:
		return true, nil
	case errors.Is(err, ledger.ErrInvalidPin):
		return false, nil
	default:
		return false, err
	}
}

// SetPIN sets or rotates the account PIN. Rotation requires the current PIN.
func (g *Guard) SetPIN(ctx context.Context, accountID, pin, current string) error {
	account, err := g.store.Account(ctx, accountID)
	if err != nil {
		return err
	}
	if account.HasPIN() {
		if err := g.Check(account.PINHash, current); err != nil {
			return err
		}
	}
	hash, err := g.Hash(pin)
	if err != nil {
		return err
	}
	return g.store.SetPINHash(ctx, accountID, hash)
}

func validate(pin string) error {
	if len(pin) < minLength || len(pin) > maxLength {
		return fmt.Errorf("%w: PIN must be %d to %d digits", ledger.ErrInvalidRequest, minLength, maxLength)
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: PIN must be numeric", ledger.ErrInvalidRequest)
		}
	}
	return nil
}
