package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/congo-pay/congo_ledger/internal/ledger"
)

// RecipientRegistrar creates transfer recipients at the payment gateway.
type RecipientRegistrar interface {
	CreateTransferRecipient(ctx context.Context, r ledger.ExternalRecipient) (string, error)
}

// PINSetter sets or rotates an account's transaction PIN.
type PINSetter interface {
	SetPIN(ctx context.Context, accountID, pin, current string) error
}

// Service exposes account operations backed by the ledger store.
type Service struct {
	store     ledger.Store
	pins      PINSetter
	registrar RecipientRegistrar
	logger    *slog.Logger
}

// NewService builds an account service instance.
func NewService(store ledger.Store, pins PINSetter, registrar RecipientRegistrar, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, pins: pins, registrar: registrar, logger: logger.With("component", "account")}
}

// Create provisions a zero-balance account for the caller. Creating an
// existing account returns it unchanged.
func (s *Service) Create(ctx context.Context, id string) (ledger.Account, error) {
	if strings.TrimSpace(id) == "" {
		return ledger.Account{}, fmt.Errorf("%w: account id is required", ledger.ErrInvalidRequest)
	}
	now := time.Now().UTC()
	err := s.store.CreateAccount(ctx, ledger.Account{ID: id, CreatedAt: now, UpdatedAt: now})
	switch {
	case errors.Is(err, ledger.ErrAccountExists):
	case err != nil:
		return ledger.Account{}, err
	default:
		s.logger.Info("account created", slog.String("account_id", id))
	}
	return s.store.Account(ctx, id)
}

// Get retrieves the account including its current balance.
func (s *Service) Get(ctx context.Context, id string) (ledger.Account, error) {
	return s.store.Account(ctx, id)
}

// SetPIN sets the transaction PIN, or rotates it when current matches.
func (s *Service) SetPIN(ctx context.Context, id, pin, current string) error {
	if err := s.pins.SetPIN(ctx, id, pin, current); err != nil {
		return err
	}
	s.logger.Info("transaction pin updated", slog.String("account_id", id))
	return nil
}

// EnsureRecipient returns the account's own payout recipient code for r. The
// code is created lazily at the gateway and reused while the destination is unchanged.
func (s *Service) EnsureRecipient(ctx context.Context, id string, r ledger.ExternalRecipient) (string, error) {
	if err := validateRecipient(r); err != nil {
		return "", err
	}
	acct, err := s.store.Account(ctx, id)
	if err != nil {
		return "", err
	}
	if acct.Provider.RecipientCode != "" && acct.Provider.RecipientDestination == r.Destination() {
		return acct.Provider.RecipientCode, nil
	}

	code, err := s.registrar.CreateTransferRecipient(ctx, r)
	if err != nil {
		return "", err
	}
	refs := acct.Provider
	refs.RecipientCode = code
	refs.RecipientDestination = r.Destination()
	if err := s.store.SetProviderRefs(ctx, id, refs); err != nil {
		// The code is still valid at the gateway; only the cache write failed.
		s.logger.Warn("cache recipient code", slog.String("account_id", id), slog.Any("error", err))
	}
	return code, nil
}

// NewRecipient registers a third-party destination without caching it.
func (s *Service) NewRecipient(ctx context.Context, r ledger.ExternalRecipient) (string, error) {
	if err := validateRecipient(r); err != nil {
		return "", err
	}
	return s.registrar.CreateTransferRecipient(ctx, r)
}

// Transactions lists the account's records, newest first.
func (s *Service) Transactions(ctx context.Context, id string, filter ledger.ListFilter) ([]ledger.Record, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ledger.ErrInvalidRequest, filter.Kind)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ledger.ErrInvalidRequest, filter.Status)
	}
	return s.store.ListRecords(ctx, id, filter)
}

// Transaction returns one of the account's records. Records of other accounts
// are reported as not found.
func (s *Service) Transaction(ctx context.Context, id, reference string) (ledger.Record, error) {
	rec, err := s.store.Record(ctx, reference)
	if err != nil {
		return ledger.Record{}, err
	}
	if rec.AccountID != id {
		return ledger.Record{}, ledger.ErrRecordNotFound
	}
	return rec, nil
}

func validateRecipient(r ledger.ExternalRecipient) error {
	if r.BankCode == "" || r.AccountNumber == "" {
		return fmt.Errorf("%w: bank code and account number are required", ledger.ErrInvalidRequest)
	}
	for _, c := range r.AccountNumber {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: account number must be numeric", ledger.ErrInvalidRequest)
		}
	}
	return nil
}
