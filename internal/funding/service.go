package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/congo-pay/congo_ledger/internal/gateway"
	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/notification"
)

// ChargeVerifier looks up the gateway's view of a charge.
type ChargeVerifier interface {
	VerifyCharge(ctx context.Context, reference string) (gateway.Verification, error)
}

// Service coordinates gateway-backed deposits using the ledger engine.
type Service struct {
	engine      *ledger.Engine
	store       ledger.Store
	verifier    ChargeVerifier
	notifier    notification.Notifier
	logger      *slog.Logger
	callbackURL string
}

// Config wires a funding service.
type Config struct {
	Engine      *ledger.Engine
	Store       ledger.Store
	Verifier    ChargeVerifier
	Notifier    notification.Notifier
	Logger      *slog.Logger
	CallbackURL string
}

// NewService prepares a funding service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Engine == nil || cfg.Store == nil {
		return nil, fmt.Errorf("ledger engine and store are required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("charge verifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:      cfg.Engine,
		store:       cfg.Store,
		verifier:    cfg.Verifier,
		notifier:    cfg.Notifier,
		logger:      logger.With("component", "funding"),
		callbackURL: cfg.CallbackURL,
	}, nil
}

// DepositInput captures the data required to open a deposit.
type DepositInput struct {
	AccountID string
	Amount    int64
	Email     string
	Reference string
}

// DepositResult is the pending deposit plus the checkout the payer must complete.
type DepositResult struct {
	Record           ledger.Record
	AuthorizationURL string
}

// Initialize records a pending deposit and opens a gateway checkout for it.
// The balance is credited only once the gateway confirms the charge.
func (s *Service) Initialize(ctx context.Context, input DepositInput) (DepositResult, error) {
	if !strings.Contains(input.Email, "@") {
		return DepositResult{}, fmt.Errorf("%w: a valid email is required", ledger.ErrInvalidRequest)
	}
	res, err := s.engine.Execute(ctx, ledger.Request{
		Operation:   ledger.OpDeposit,
		AccountID:   input.AccountID,
		Amount:      input.Amount,
		Reference:   input.Reference,
		Email:       input.Email,
		CallbackURL: s.callbackURL,
		Narration:   "wallet funding",
	})
	if err != nil {
		return DepositResult{}, err
	}
	return DepositResult{Record: res.Primary(), AuthorizationURL: res.AuthorizationURL}, nil
}

// Verify asks the gateway for the state of a pending deposit and settles or
// declines it accordingly. Deposits already past pending are returned as is.
func (s *Service) Verify(ctx context.Context, accountID, reference string) (ledger.Record, error) {
	rec, err := s.deposit(ctx, accountID, reference)
	if err != nil {
		return ledger.Record{}, err
	}
	if rec.Status != ledger.StatusPending {
		return rec, nil
	}

	v, err := s.verifier.VerifyCharge(ctx, reference)
	if err != nil {
		return ledger.Record{}, err
	}

	var to ledger.Status
	switch {
	case v.Succeeded() && v.Amount == rec.Amount:
		to = ledger.StatusSuccessful
	case v.Succeeded():
		s.logger.Warn("verified amount does not match deposit",
			slog.String("reference", reference),
			slog.Int64("expected", rec.Amount),
			slog.Int64("reported", v.Amount))
		return rec, nil
	case v.Failed():
		to = ledger.StatusDeclined
	default:
		return rec, nil
	}

	updated, err := s.engine.Transition(ctx, ledger.TransitionRequest{
		Reference:             reference,
		To:                    to,
		ProviderTransactionID: v.ID,
		Kinds:                 []ledger.Kind{ledger.KindDeposit},
	})
	if errors.Is(err, ledger.ErrInvalidStateTransition) {
		// A webhook or a cancellation got there first.
		return s.store.Record(ctx, reference)
	}
	if err != nil {
		return ledger.Record{}, err
	}
	s.notify(ctx, updated)
	return updated, nil
}

// Cancel abandons a pending deposit owned by the caller.
func (s *Service) Cancel(ctx context.Context, accountID, reference string) (ledger.Record, error) {
	return s.engine.Cancel(ctx, accountID, reference)
}

func (s *Service) deposit(ctx context.Context, accountID, reference string) (ledger.Record, error) {
	rec, err := s.store.Record(ctx, reference)
	if err != nil {
		return ledger.Record{}, err
	}
	if rec.AccountID != accountID || rec.Kind != ledger.KindDeposit {
		return ledger.Record{}, ledger.ErrRecordNotFound
	}
	return rec, nil
}

func (s *Service) notify(ctx context.Context, rec ledger.Record) {
	if s.notifier == nil {
		return
	}
	kind := notification.KindDepositSettled
	if rec.Status == ledger.StatusDeclined {
		kind = notification.KindDepositDeclined
	}
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: rec.AccountID,
		Reference:   rec.Reference,
		Body:        fmt.Sprintf("Deposit %s is %s", rec.Reference, rec.Status),
	}); err != nil {
		s.logger.Warn("send notification", slog.String("reference", rec.Reference), slog.Any("error", err))
	}
}
