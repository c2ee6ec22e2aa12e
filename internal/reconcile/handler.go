// Package reconcile applies signed payment gateway events to the ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/notification"
)

// Outcomes reported to the EventRecorder.
const (
	OutcomeApplied        = "applied"
	OutcomeIgnored        = "ignored"
	OutcomeAmountMismatch = "amount_mismatch"
	OutcomeRejected       = "rejected"
	OutcomeError          = "error"
)

// EventRecorder observes handled events.
type EventRecorder interface {
	EventHandled(event, outcome string)
}

// Config wires a Handler.
type Config struct {
	Engine   *ledger.Engine
	Store    ledger.Store
	Secret   string
	Notifier notification.Notifier
	Recorder EventRecorder
	Logger   *slog.Logger
}

// Handler verifies webhook payloads and drives the matching status transitions.
type Handler struct {
	engine   *ledger.Engine
	store    ledger.Store
	secret   []byte
	notifier notification.Notifier
	recorder EventRecorder
	logger   *slog.Logger
}

// NewHandler builds a reconciliation handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Engine == nil || cfg.Store == nil {
		return nil, fmt.Errorf("ledger engine and store are required")
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:   cfg.Engine,
		store:    cfg.Store,
		secret:   []byte(cfg.Secret),
		notifier: cfg.Notifier,
		recorder: cfg.Recorder,
		logger:   logger.With("component", "reconcile"),
	}, nil
}

// HandleEvent verifies and applies one webhook delivery. It returns nil for
// every well-formed event, including unknown kinds, unmatched references and
// events the record's state has already moved past. Errors are either
// ErrInvalidSignature, ErrInvalidRequest or a retryable store failure.
func (h *Handler) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	if !Verify(h.secret, payload, signature) {
		h.record("unverified", OutcomeRejected)
		h.logger.Warn("webhook signature rejected", slog.Int("bytes", len(payload)))
		return ledger.ErrInvalidSignature
	}

	ev, err := Decode(payload)
	if err != nil {
		h.record("malformed", OutcomeRejected)
		h.logger.Warn("webhook payload rejected", slog.Any("error", err))
		return err
	}

	outcome, err := h.apply(ctx, ev)
	h.record(string(ev.Kind), outcome)
	return err
}

func (h *Handler) apply(ctx context.Context, ev Event) (string, error) {
	log := h.logger.With(slog.String("event", string(ev.Kind)), slog.String("reference", ev.Reference))

	r, ok := rules[ev.Kind]
	if !ok {
		log.Info("webhook event ignored: unhandled kind")
		return OutcomeIgnored, nil
	}

	current, err := h.store.Record(ctx, ev.Reference)
	if errors.Is(err, ledger.ErrRecordNotFound) {
		log.Warn("webhook event ignored: unknown reference")
		return OutcomeIgnored, nil
	}
	if err != nil {
		log.Error("webhook lookup failed", slog.Any("error", err))
		return OutcomeError, err
	}
	if r.checkAmount && ev.Amount != current.Amount {
		log.Warn("webhook amount does not match record",
			slog.Int64("expected", current.Amount),
			slog.Int64("reported", ev.Amount),
			slog.String("status", string(current.Status)))
		return OutcomeAmountMismatch, nil
	}

	updated, err := h.engine.Transition(ctx, ledger.TransitionRequest{
		Reference:             ev.Reference,
		To:                    r.to,
		ProviderTransactionID: ev.ProviderID,
		Kinds:                 r.kinds,
	})
	switch {
	case errors.Is(err, ledger.ErrInvalidStateTransition), errors.Is(err, ledger.ErrRecordNotFound):
		log.Info("webhook event ignored: no applicable transition",
			slog.String("status", string(current.Status)),
			slog.Any("error", err))
		return OutcomeIgnored, nil
	case err != nil:
		log.Error("webhook transition failed", slog.Any("error", err))
		return OutcomeError, err
	}

	log.Info("webhook event applied", slog.String("status", string(updated.Status)))
	h.notify(ctx, updated)
	return OutcomeApplied, nil
}

func (h *Handler) record(event, outcome string) {
	if h.recorder != nil {
		h.recorder.EventHandled(event, outcome)
	}
}

func (h *Handler) notify(ctx context.Context, rec ledger.Record) {
	if h.notifier == nil {
		return
	}
	var kind string
	switch {
	case rec.Status == ledger.StatusReversed:
		kind = notification.KindReversed
	case rec.Kind == ledger.KindDeposit && rec.Status == ledger.StatusSuccessful:
		kind = notification.KindDepositSettled
	case rec.Kind == ledger.KindDeposit:
		kind = notification.KindDepositDeclined
	case rec.Status == ledger.StatusSuccessful:
		kind = notification.KindPayoutSettled
	default:
		kind = notification.KindPayoutFailed
	}
	if err := h.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: rec.AccountID,
		Reference:   rec.Reference,
		Body:        fmt.Sprintf("Transaction %s is %s", rec.Reference, rec.Status),
	}); err != nil {
		h.logger.Warn("send notification", slog.String("reference", rec.Reference), slog.Any("error", err))
	}
}
