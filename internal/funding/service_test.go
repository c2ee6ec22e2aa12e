package funding

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/congo_ledger/internal/gateway"
	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/logging"
	"github.com/congo-pay/congo_ledger/internal/notification"
	"github.com/congo-pay/congo_ledger/internal/pin"
)

type fixedVerifier struct {
	v gateway.Verification
}

func (f fixedVerifier) VerifyCharge(_ context.Context, reference string) (gateway.Verification, error) {
	v := f.v
	v.Reference = reference
	return v, nil
}

type fixture struct {
	store    ledger.Store
	gw       *gateway.StaticGateway
	notifier *notification.Recorder
	service  *Service
}

func newFixture(t *testing.T, verifier ChargeVerifier) fixture {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewInMemory()
	gw := gateway.NewStaticGateway()
	engine, err := ledger.NewEngine(ledger.EngineConfig{
		Store:    store,
		Guard:    pin.NewGuard(store, bcrypt.MinCost),
		Provider: gw,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if verifier == nil {
		verifier = gw
	}
	notifier := &notification.Recorder{}
	service, err := NewService(Config{
		Engine:   engine,
		Store:    store,
		Verifier: verifier,
		Notifier: notifier,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	for _, id := range []string{"acct-a", "acct-b"} {
		if err := store.CreateAccount(ctx, ledger.Account{ID: id}); err != nil {
			t.Fatalf("create account: %v", err)
		}
	}
	return fixture{store: store, gw: gw, notifier: notifier, service: service}
}

func (f fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	a, err := f.store.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("account %s: %v", id, err)
	}
	return a.Balance
}

func TestInitializeLeavesBalanceUntouched(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res, err := f.service.Initialize(ctx, DepositInput{AccountID: "acct-a", Amount: 10_000, Email: "a@example.com", Reference: "dep-1"})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if res.Record.Status != ledger.StatusPending || res.AuthorizationURL == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Record.ProviderTransactionID == "" {
		t.Fatal("access code should be stored on the record")
	}
	if got := f.balance(t, "acct-a"); got != 0 {
		t.Fatalf("pending deposit must not credit, balance %d", got)
	}

	if _, err := f.service.Initialize(ctx, DepositInput{AccountID: "acct-a", Amount: 10_000, Email: "a@example.com", Reference: "dep-1"}); !errors.Is(err, ledger.ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference, got %v", err)
	}
	if _, err := f.service.Initialize(ctx, DepositInput{AccountID: "acct-a", Amount: 10_000, Email: "nope"}); !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestVerifySettlesExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.Initialize(ctx, DepositInput{AccountID: "acct-a", Amount: 4_000, Email: "a@example.com", Reference: "dep-2"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	for i := 0; i < 3; i++ {
		rec, err := f.service.Verify(ctx, "acct-a", "dep-2")
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
		if rec.Status != ledger.StatusSuccessful {
			t.Fatalf("verify %d: status %s", i, rec.Status)
		}
	}
	if got := f.balance(t, "acct-a"); got != 4_000 {
		t.Fatalf("expected one credit of 4000, balance %d", got)
	}
	if len(f.notifier.Messages) != 1 || f.notifier.Messages[0].Kind != notification.KindDepositSettled {
		t.Fatalf("expected one settlement notification, got %+v", f.notifier.Messages)
	}
}

func TestVerifyAmountMismatchLeavesPending(t *testing.T) {
	f := newFixture(t, fixedVerifier{v: gateway.Verification{Status: "success", Amount: 999_999, ID: "1"}})
	ctx := context.Background()

	if _, err := f.service.Initialize(ctx, DepositInput{AccountID: "acct-a", Amount: 1_000, Email: "a@example.com", Reference: "dep-3"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	rec, err := f.service.Verify(ctx, "acct-a", "dep-3")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rec.Status != ledger.StatusPending {
		t.Fatalf("mismatched amount must not settle, status %s", rec.Status)
	}
	if got := f.balance(t, "acct-a"); got != 0 {
		t.Fatalf("balance %d", got)
	}
}

func TestVerifyFailedChargeDeclines(t *testing.T) {
	f := newFixture(t, fixedVerifier{v: gateway.Verification{Status: "failed"}})
	ctx := context.Background()

	if _, err := f.service.Initialize(ctx, DepositInput{AccountID: "acct-a", Amount: 1_000, Email: "a@example.com", Reference: "dep-4"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	rec, err := f.service.Verify(ctx, "acct-a", "dep-4")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rec.Status != ledger.StatusDeclined {
		t.Fatalf("expected declined, got %s", rec.Status)
	}
	if got := f.balance(t, "acct-a"); got != 0 {
		t.Fatalf("balance %d", got)
	}
}

func TestCancelThenVerify(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.Initialize(ctx, DepositInput{AccountID: "acct-a", Amount: 1_000, Email: "a@example.com", Reference: "dep-5"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := f.service.Cancel(ctx, "acct-b", "dep-5"); !errors.Is(err, ledger.ErrRecordNotFound) {
		t.Fatalf("foreign cancel should look like not found, got %v", err)
	}
	rec, err := f.service.Cancel(ctx, "acct-a", "dep-5")
	if err != nil || rec.Status != ledger.StatusCancelled {
		t.Fatalf("cancel: %+v %v", rec, err)
	}
	rec, err = f.service.Verify(ctx, "acct-a", "dep-5")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rec.Status != ledger.StatusCancelled {
		t.Fatalf("cancelled deposit must stay cancelled, got %s", rec.Status)
	}
	if got := f.balance(t, "acct-a"); got != 0 {
		t.Fatalf("balance %d", got)
	}
}

func TestVerifyForeignDeposit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	if _, err := f.service.Initialize(ctx, DepositInput{AccountID: "acct-a", Amount: 1_000, Email: "a@example.com", Reference: "dep-6"}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := f.service.Verify(ctx, "acct-b", "dep-6"); !errors.Is(err, ledger.ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
