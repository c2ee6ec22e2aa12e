package notification

import (
	"context"
	"log/slog"
)

const (
	// KindTransferReceived tells an account holder that an on-platform transfer arrived.
	KindTransferReceived = "transfer_received"
	// KindDepositSettled tells an account holder that a deposit was credited.
	KindDepositSettled = "deposit_settled"
	// KindDepositDeclined tells an account holder that the gateway declined a deposit.
	KindDepositDeclined = "deposit_declined"
	// KindPayoutSettled tells an account holder that a payout reached the bank.
	KindPayoutSettled = "payout_settled"
	// KindPayoutFailed tells an account holder that a payout failed and was refunded.
	KindPayoutFailed = "payout_failed"
	// KindReversed tells an account holder that a settled transaction was reversed.
	KindReversed = "transaction_reversed"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Reference   string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("reference", message.Reference),
		slog.String("body", message.Body))
	return nil
}

// Recorder keeps sent messages in memory. Useful for tests.
type Recorder struct {
	Messages []Message
}

// Send appends the message.
func (r *Recorder) Send(_ context.Context, message Message) error {
	r.Messages = append(r.Messages, message)
	return nil
}
