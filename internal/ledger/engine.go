package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// ReceiveLegSuffix is appended to a transfer's reference to form the recipient leg.
	ReceiveLegSuffix = "-rcv"

	defaultProviderTimeout = 15 * time.Second
	maxReferenceLength     = 100
)

// Operation is the class of money movement requested from the engine.
type Operation string

const (
	// OpTransfer moves funds between two accounts on the platform and settles immediately.
	OpTransfer Operation = "transfer"
	// OpDeposit opens a provider checkout; the credit lands when the charge is confirmed.
	OpDeposit Operation = "deposit"
	// OpSettledDeposit credits funds the provider already confirmed.
	OpSettledDeposit Operation = "settled_deposit"
	// OpWithdraw pays out to the account holder's own bank account.
	OpWithdraw Operation = "withdraw"
	// OpBankTransfer pays out to a third-party bank account.
	OpBankTransfer Operation = "bank_transfer"
)

func (o Operation) requiresPIN() bool {
	return o == OpTransfer || o == OpWithdraw || o == OpBankTransfer
}

func (o Operation) debits() bool {
	return o == OpTransfer || o == OpWithdraw || o == OpBankTransfer
}

func (o Operation) valid() bool {
	switch o {
	case OpTransfer, OpDeposit, OpSettledDeposit, OpWithdraw, OpBankTransfer:
		return true
	}
	return false
}

// Authorizer verifies a candidate PIN against a stored hash.
type Authorizer interface {
	Check(hash []byte, candidate string) error
}

// ChargeRequest asks the provider to open a checkout for a deposit.
type ChargeRequest struct {
	Reference   string
	Amount      int64
	Email       string
	CallbackURL string
}

// Charge is the provider's answer to a ChargeRequest.
type Charge struct {
	AuthorizationURL string
	AccessCode       string
}

// PayoutRequest asks the provider to push funds to a transfer recipient.
type PayoutRequest struct {
	Reference     string
	Amount        int64
	RecipientCode string
	Reason        string
}

// Payout is the provider's answer to a PayoutRequest.
type Payout struct {
	TransferCode string
	Status       string
}

// Provider is the subset of the payment gateway called synchronously from a unit of work.
// Implementations return errors wrapping ErrProviderUnavailable or ErrProviderRejected.
type Provider interface {
	InitializeCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	CreateTransfer(ctx context.Context, req PayoutRequest) (Payout, error)
}

// Observer receives engine outcomes, typically for metrics.
type Observer interface {
	OperationCompleted(op Operation, code string)
	Transitioned(kind Kind, from, to Status)
}

// Request describes one money movement.
type Request struct {
	Operation Operation
	AccountID string
	Amount    int64
	Fee       int64
	PIN       string
	Reference string

	// CounterpartyID is the receiving account of an OpTransfer.
	CounterpartyID string
	// Recipient and RecipientCode describe the payout destination of OpWithdraw and OpBankTransfer.
	Recipient     *ExternalRecipient
	RecipientCode string
	// Email and CallbackURL are forwarded to the provider for OpDeposit.
	Email       string
	CallbackURL string
	Narration   string
}

// Result is the outcome of Execute.
type Result struct {
	Reference        string
	Records          []Record
	AuthorizationURL string
}

// Primary returns the initiating account's record.
func (r Result) Primary() Record {
	if len(r.Records) == 0 {
		return Record{}
	}
	return r.Records[0]
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store           Store
	Guard           Authorizer
	Provider        Provider
	Observer        Observer
	Logger          *slog.Logger
	ProviderTimeout time.Duration
	Now             func() time.Time
}

// Engine validates, mutates balances and records transactions as single units of work.
type Engine struct {
	store           Store
	guard           Authorizer
	provider        Provider
	observer        Observer
	logger          *slog.Logger
	providerTimeout time.Duration
	now             func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("pin guard is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("payment provider is required")
	}
	e := &Engine{
		store:           cfg.Store,
		guard:           cfg.Guard,
		provider:        cfg.Provider,
		observer:        cfg.Observer,
		logger:          cfg.Logger,
		providerTimeout: cfg.ProviderTimeout,
		now:             cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("component", "ledger")
	if e.providerTimeout <= 0 {
		e.providerTimeout = defaultProviderTimeout
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e, nil
}

// NewReference generates a globally unique transaction reference.
func NewReference() string {
	return "txn_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Execute performs req as one unit of work: either every balance change and
// record insert commits, or none does.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	res, err := e.execute(ctx, req)
	if e.observer != nil {
		code := "ok"
		if err != nil {
			code = Code(err)
		}
		e.observer.OperationCompleted(req.Operation, code)
	}
	return res, err
}

func (e *Engine) execute(ctx context.Context, req Request) (Result, error) {
	if !req.Operation.valid() {
		return Result{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, req.Operation)
	}
	if req.Amount <= 0 || req.Fee < 0 {
		return Result{}, ErrInvalidAmount
	}
	if req.Reference == "" {
		req.Reference = NewReference()
	}
	if len(req.Reference) > maxReferenceLength || strings.ContainsAny(req.Reference, " \t\n") {
		return Result{}, fmt.Errorf("%w: malformed reference", ErrInvalidRequest)
	}
	if strings.HasSuffix(req.Reference, ReceiveLegSuffix) {
		return Result{}, fmt.Errorf("%w: reference suffix %q is reserved", ErrInvalidRequest, ReceiveLegSuffix)
	}
	if req.Operation == OpTransfer {
		if req.CounterpartyID == "" {
			return Result{}, ErrCounterpartyNotFound
		}
		if req.CounterpartyID == req.AccountID {
			return Result{}, ErrSameAccount
		}
	}
	if (req.Operation == OpWithdraw || req.Operation == OpBankTransfer) && (req.RecipientCode == "" || req.Recipient == nil) {
		return Result{}, fmt.Errorf("%w: payout recipient is required", ErrInvalidRequest)
	}

	var res Result
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		res = Result{Reference: req.Reference}

		ids := []string{req.AccountID}
		if req.Operation == OpTransfer {
			ids = append(ids, req.CounterpartyID)
		}
		locked, err := lockAccounts(ctx, tx, ids)
		if err != nil {
			return err
		}
		account, ok := locked[req.AccountID]
		if !ok {
			return ErrAccountNotFound
		}

		if req.Operation.requiresPIN() {
			if err := e.guard.Check(account.PINHash, req.PIN); err != nil {
				return err
			}
		}

		debit := req.Amount + req.Fee
		if req.Operation.debits() && account.Balance < debit {
			return fmt.Errorf("%w: balance %d, required %d", ErrInsufficientBalance, account.Balance, debit)
		}

		if req.Operation == OpTransfer {
			if _, ok := locked[req.CounterpartyID]; !ok {
				return ErrCounterpartyNotFound
			}
		}

		now := e.now()
		switch req.Operation {
		case OpTransfer:
			return e.transfer(ctx, tx, req, now, &res)
		case OpSettledDeposit:
			return e.settledDeposit(ctx, tx, req, now, &res)
		case OpDeposit:
			return e.deposit(ctx, tx, req, now, &res)
		default:
			return e.payout(ctx, tx, req, now, &res)
		}
	})
	if err != nil {
		e.logger.Info("ledger operation aborted",
			slog.String("operation", string(req.Operation)),
			slog.String("reference", req.Reference),
			slog.String("account_id", req.AccountID),
			slog.Any("error", err))
		return Result{}, err
	}

	e.logger.Info("ledger operation committed",
		slog.String("operation", string(req.Operation)),
		slog.String("reference", req.Reference),
		slog.String("account_id", req.AccountID),
		slog.Int64("amount", req.Amount),
		slog.Int64("fee", req.Fee),
		slog.String("status", string(res.Primary().Status)))
	return res, nil
}

func (e *Engine) transfer(ctx context.Context, tx Tx, req Request, now time.Time, res *Result) error {
	if _, err := tx.AddBalance(ctx, req.AccountID, -(req.Amount + req.Fee)); err != nil {
		return err
	}
	if _, err := tx.AddBalance(ctx, req.CounterpartyID, req.Amount); err != nil {
		return err
	}
	sender := newRecord(req, KindSend, StatusSuccessful, now)
	sender.CounterpartyAccountID = req.CounterpartyID

	recipient := newRecord(req, KindReceive, StatusSuccessful, now)
	recipient.Reference = req.Reference + ReceiveLegSuffix
	recipient.AccountID = req.CounterpartyID
	recipient.CounterpartyAccountID = req.AccountID
	recipient.Fee = 0

	return insertRecords(ctx, tx, res, sender, recipient)
}

func (e *Engine) settledDeposit(ctx context.Context, tx Tx, req Request, now time.Time, res *Result) error {
	if _, err := tx.AddBalance(ctx, req.AccountID, req.Amount); err != nil {
		return err
	}
	return insertRecords(ctx, tx, res, newRecord(req, KindDeposit, StatusSuccessful, now))
}

func (e *Engine) deposit(ctx context.Context, tx Tx, req Request, now time.Time, res *Result) error {
	rec := newRecord(req, KindDeposit, StatusPending, now)
	if err := tx.InsertRecord(ctx, rec); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()
	charge, err := e.provider.InitializeCharge(callCtx, ChargeRequest{
		Reference:   req.Reference,
		Amount:      req.Amount,
		Email:       req.Email,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		return providerError("initialize charge", err)
	}
	if charge.AccessCode != "" {
		if err := tx.UpdateRecord(ctx, rec.Reference, rec.Status, charge.AccessCode, now); err != nil {
			return err
		}
		rec.ProviderTransactionID = charge.AccessCode
	}
	res.Records = []Record{rec}
	res.AuthorizationURL = charge.AuthorizationURL
	return nil
}

func (e *Engine) payout(ctx context.Context, tx Tx, req Request, now time.Time, res *Result) error {
	if _, err := tx.AddBalance(ctx, req.AccountID, -(req.Amount + req.Fee)); err != nil {
		return err
	}
	kind := KindSend
	if req.Operation == OpWithdraw {
		kind = KindWithdraw
	}
	rec := newRecord(req, kind, StatusPending, now)
	recipient := *req.Recipient
	rec.Recipient = &recipient
	if err := tx.InsertRecord(ctx, rec); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.providerTimeout)
	defer cancel()
	payout, err := e.provider.CreateTransfer(callCtx, PayoutRequest{
		Reference:     req.Reference,
		Amount:        req.Amount,
		RecipientCode: req.RecipientCode,
		Reason:        req.Narration,
	})
	if err != nil {
		return providerError("create transfer", err)
	}
	if payout.TransferCode != "" {
		if err := tx.UpdateRecord(ctx, rec.Reference, rec.Status, payout.TransferCode, now); err != nil {
			return err
		}
		rec.ProviderTransactionID = payout.TransferCode
	}
	res.Records = []Record{rec}
	return nil
}

// TransitionRequest describes a status change driven by the provider or the account holder.
type TransitionRequest struct {
	Reference string
	To        Status
	// ProviderTransactionID is stored on the record when set.
	ProviderTransactionID string
	// AccountID restricts the transition to records owned by the account when set.
	AccountID string
	// Kinds restricts the transition to the listed record kinds when set.
	Kinds []Kind
}

// Transition moves a record, together with every leg sharing its correlation
// and the same current status, to req.To and applies the compensating balance
// changes. A record already past the source state yields ErrInvalidStateTransition
// and changes nothing, which makes redelivery of the same event harmless.
func (e *Engine) Transition(ctx context.Context, req TransitionRequest) (Record, error) {
	if !req.To.Valid() {
		return Record{}, fmt.Errorf("%w: unknown status %q", ErrInvalidStateTransition, req.To)
	}

	// Correlation is immutable; reading it outside the unit of work lets every
	// transition lock legs in the same order.
	current, err := e.store.Record(ctx, req.Reference)
	if err != nil {
		return Record{}, err
	}
	if req.AccountID != "" && current.AccountID != req.AccountID {
		return Record{}, ErrRecordNotFound
	}
	if len(req.Kinds) > 0 && !containsKind(req.Kinds, current.Kind) {
		return Record{}, fmt.Errorf("%w: %s records cannot become %s", ErrInvalidStateTransition, current.Kind, req.To)
	}

	var (
		updated Record
		from    Status
		moved   []Record
	)
	err = e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		moved = moved[:0]
		legs, err := tx.LockCorrelated(ctx, correlationOf(current))
		if err != nil {
			return err
		}
		var primary *Record
		for i := range legs {
			if legs[i].Reference == req.Reference {
				primary = &legs[i]
			}
		}
		if primary == nil {
			return ErrRecordNotFound
		}
		if err := checkTransition(primary.Status, req.To); err != nil {
			return err
		}

		from = primary.Status
		now := e.now()
		deltas := make(map[string]int64)
		for _, leg := range legs {
			if leg.Status != from {
				continue
			}
			if d := delta(leg, req.To); d != 0 {
				deltas[leg.AccountID] += d
			}
			providerTxID := ""
			if leg.Reference == req.Reference {
				providerTxID = req.ProviderTransactionID
			}
			if err := tx.UpdateRecord(ctx, leg.Reference, req.To, providerTxID, now); err != nil {
				return err
			}
			leg.Status = req.To
			leg.StatusUpdatedAt = now
			if providerTxID != "" {
				leg.ProviderTransactionID = providerTxID
			}
			moved = append(moved, leg)
			if leg.Reference == req.Reference {
				updated = leg
			}
		}

		// Balances are touched in account order, like Execute, so the two cannot deadlock.
		accountIDs := make([]string, 0, len(deltas))
		for id := range deltas {
			accountIDs = append(accountIDs, id)
		}
		sort.Strings(accountIDs)
		for _, id := range accountIDs {
			if _, err := tx.AddBalance(ctx, id, deltas[id]); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return Record{}, err
	}

	if e.observer != nil {
		for _, leg := range moved {
			e.observer.Transitioned(leg.Kind, from, req.To)
		}
	}

	e.logger.Info("transaction transitioned",
		slog.String("reference", updated.Reference),
		slog.String("kind", string(updated.Kind)),
		slog.String("status", string(updated.Status)))
	return updated, nil
}

// Cancel abandons a pending deposit owned by accountID. It races safely with a
// settlement event for the same reference: whichever commits first wins and the
// other is rejected by the state machine.
func (e *Engine) Cancel(ctx context.Context, accountID, reference string) (Record, error) {
	return e.Transition(ctx, TransitionRequest{
		Reference: reference,
		To:        StatusCancelled,
		AccountID: accountID,
		Kinds:     []Kind{KindDeposit},
	})
}

func lockAccounts(ctx context.Context, tx Tx, ids []string) (map[string]Account, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	locked := make(map[string]Account, len(sorted))
	for _, id := range sorted {
		a, err := tx.LockAccount(ctx, id)
		if errors.Is(err, ErrAccountNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		locked[id] = a
	}
	return locked, nil
}

func newRecord(req Request, kind Kind, status Status, now time.Time) Record {
	return Record{
		Reference:       req.Reference,
		Correlation:     req.Reference,
		Kind:            kind,
		Amount:          req.Amount,
		Fee:             req.Fee,
		Status:          status,
		AccountID:       req.AccountID,
		Narration:       req.Narration,
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}
}

func insertRecords(ctx context.Context, tx Tx, res *Result, records ...Record) error {
	for _, r := range records {
		if err := tx.InsertRecord(ctx, r); err != nil {
			return err
		}
	}
	res.Records = records
	return nil
}

func correlationOf(r Record) string {
	if r.Correlation != "" {
		return r.Correlation
	}
	return r.Reference
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, candidate := range kinds {
		if candidate == k {
			return true
		}
	}
	return false
}

func providerError(op string, err error) error {
	switch {
	case errors.Is(err, ErrProviderRejected), errors.Is(err, ErrProviderUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrProviderUnavailable, err)
	}
}
