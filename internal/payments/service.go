package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/congo_ledger/internal/config"
	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/money"
	"github.com/congo-pay/congo_ledger/internal/notification"
)

// Recipients resolves gateway transfer recipients for payouts.
type Recipients interface {
	EnsureRecipient(ctx context.Context, accountID string, r ledger.ExternalRecipient) (string, error)
	NewRecipient(ctx context.Context, r ledger.ExternalRecipient) (string, error)
}

// PINVerifier checks a caller's transaction PIN without side effects.
type PINVerifier interface {
	Verify(ctx context.Context, accountID, pin string) (bool, error)
}

// Service runs transfers and payouts through the ledger engine.
type Service struct {
	engine     *ledger.Engine
	recipients Recipients
	pins       PINVerifier
	notifier   notification.Notifier
	fees       config.Fees
	logger     *slog.Logger
}

// NewService constructs a payment service.
func NewService(engine *ledger.Engine, recipients Recipients, pins PINVerifier, notifier notification.Notifier, fees config.Fees, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:     engine,
		recipients: recipients,
		pins:       pins,
		notifier:   notifier,
		fees:       fees,
		logger:     logger.With("component", "payments"),
	}
}

// TransferInput captures the data needed to move funds between accounts.
type TransferInput struct {
	AccountID   string
	ToAccountID string
	Amount      int64
	PIN         string
	Reference   string
	Narration   string
}

// PayoutInput captures the data needed to push funds to a bank account.
type PayoutInput struct {
	AccountID string
	Recipient ledger.ExternalRecipient
	Amount    int64
	PIN       string
	Reference string
	Narration string
}

// Transfer moves funds to another account on the platform. Both legs settle immediately.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (ledger.Result, error) {
	res, err := s.engine.Execute(ctx, ledger.Request{
		Operation:      ledger.OpTransfer,
		AccountID:      input.AccountID,
		CounterpartyID: input.ToAccountID,
		Amount:         input.Amount,
		Fee:            s.fees.Transfer,
		PIN:            input.PIN,
		Reference:      input.Reference,
		Narration:      input.Narration,
	})
	if err != nil {
		return ledger.Result{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindTransferReceived,
			Destination: input.ToAccountID,
			Reference:   res.Reference + ledger.ReceiveLegSuffix,
			Body:        fmt.Sprintf("You received %s from %s", money.Format(input.Amount), input.AccountID),
		}); err != nil {
			s.logger.Warn("send notification", slog.String("reference", res.Reference), slog.Any("error", err))
		}
	}
	return res, nil
}

// Withdraw pays out to the caller's own bank account. The record stays pending
// until the gateway reports the transfer outcome.
func (s *Service) Withdraw(ctx context.Context, input PayoutInput) (ledger.Result, error) {
	if err := s.authorize(ctx, input); err != nil {
		return ledger.Result{}, err
	}
	code, err := s.recipients.EnsureRecipient(ctx, input.AccountID, input.Recipient)
	if err != nil {
		return ledger.Result{}, err
	}
	return s.payout(ctx, ledger.OpWithdraw, s.fees.Withdrawal, code, input)
}

// BankTransfer pays out to a third-party bank account.
func (s *Service) BankTransfer(ctx context.Context, input PayoutInput) (ledger.Result, error) {
	if err := s.authorize(ctx, input); err != nil {
		return ledger.Result{}, err
	}
	code, err := s.recipients.NewRecipient(ctx, input.Recipient)
	if err != nil {
		return ledger.Result{}, err
	}
	return s.payout(ctx, ledger.OpBankTransfer, s.fees.BankTransfer, code, input)
}

// authorize rejects a payout before the gateway is asked for a recipient. The
// engine checks the PIN again under the account lock.
func (s *Service) authorize(ctx context.Context, input PayoutInput) error {
	if input.Amount <= 0 {
		return ledger.ErrInvalidAmount
	}
	ok, err := s.pins.Verify(ctx, input.AccountID, input.PIN)
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrInvalidPin
	}
	return nil
}

func (s *Service) payout(ctx context.Context, op ledger.Operation, fee int64, recipientCode string, input PayoutInput) (ledger.Result, error) {
	recipient := input.Recipient
	narration := input.Narration
	if narration == "" {
		narration = "payout to " + recipient.Destination()
	}
	return s.engine.Execute(ctx, ledger.Request{
		Operation:     op,
		AccountID:     input.AccountID,
		Amount:        input.Amount,
		Fee:           fee,
		PIN:           input.PIN,
		Reference:     input.Reference,
		Recipient:     &recipient,
		RecipientCode: recipientCode,
		Narration:     narration,
	})
}
