package payments

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/congo_ledger/internal/account"
	"github.com/congo-pay/congo_ledger/internal/config"
	"github.com/congo-pay/congo_ledger/internal/gateway"
	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/logging"
	"github.com/congo-pay/congo_ledger/internal/notification"
	"github.com/congo-pay/congo_ledger/internal/pin"
)

var fees = config.Fees{Transfer: 25, Withdrawal: 50, BankTransfer: 100}

type fixture struct {
	store    ledger.Store
	engine   *ledger.Engine
	guard    *pin.Guard
	accounts *account.Service
	notifier *notification.Recorder
	service  *Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := ledger.NewInMemory()
	guard := pin.NewGuard(store, bcrypt.MinCost)
	gw := gateway.NewStaticGateway()
	engine, err := ledger.NewEngine(ledger.EngineConfig{
		Store:    store,
		Guard:    guard,
		Provider: gw,
		Logger:   logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	accounts := account.NewService(store, guard, gw, logging.Discard())
	notifier := &notification.Recorder{}

	for _, id := range []string{"acct-a", "acct-b"} {
		if _, err := accounts.Create(ctx, id); err != nil {
			t.Fatalf("create account: %v", err)
		}
		if err := accounts.SetPIN(ctx, id, "1234", ""); err != nil {
			t.Fatalf("set pin: %v", err)
		}
		ledger.SeedBalance(store, id, 500)
	}
	return fixture{
		store:    store,
		engine:   engine,
		guard:    guard,
		accounts: accounts,
		notifier: notifier,
		service:  NewService(engine, accounts, guard, notifier, fees, logging.Discard()),
	}
}

func (f fixture) balance(t *testing.T, id string) int64 {
	t.Helper()
	a, err := f.store.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("account %s: %v", id, err)
	}
	return a.Balance
}

var bank = ledger.ExternalRecipient{BankCode: "058", AccountNumber: "0123456789", AccountName: "Ada Obi"}

func TestTransferAppliesFee(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Transfer(ctx, TransferInput{AccountID: "acct-a", ToAccountID: "acct-b", Amount: 200, PIN: "1234", Reference: "p2p-1"})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if len(res.Records) != 2 || res.Primary().Fee != 25 {
		t.Fatalf("unexpected result %+v", res)
	}
	if a, b := f.balance(t, "acct-a"), f.balance(t, "acct-b"); a != 275 || b != 700 {
		t.Fatalf("balances a=%d b=%d", a, b)
	}
	if len(f.notifier.Messages) != 1 || f.notifier.Messages[0].Destination != "acct-b" {
		t.Fatalf("expected recipient notification, got %+v", f.notifier.Messages)
	}
}

func TestTransferWrongPIN(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Transfer(context.Background(), TransferInput{AccountID: "acct-a", ToAccountID: "acct-b", Amount: 200, PIN: "9999"})
	if !errors.Is(err, ledger.ErrInvalidPin) {
		t.Fatalf("expected invalid pin, got %v", err)
	}
	if a := f.balance(t, "acct-a"); a != 500 {
		t.Fatalf("balance changed to %d", a)
	}
	if len(f.notifier.Messages) != 0 {
		t.Fatal("no notification expected")
	}
}

func TestWithdrawCachesRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Withdraw(ctx, PayoutInput{AccountID: "acct-a", Recipient: bank, Amount: 100, PIN: "1234"})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	rec := res.Primary()
	if rec.Kind != ledger.KindWithdraw || rec.Status != ledger.StatusPending || rec.ProviderTransactionID == "" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if a := f.balance(t, "acct-a"); a != 350 {
		t.Fatalf("expected 500-100-50, got %d", a)
	}

	acct, _ := f.store.Account(ctx, "acct-a")
	code := acct.Provider.RecipientCode
	if code == "" {
		t.Fatal("recipient code should be cached")
	}
	if _, err := f.service.Withdraw(ctx, PayoutInput{AccountID: "acct-a", Recipient: bank, Amount: 100, PIN: "1234"}); err != nil {
		t.Fatalf("second withdraw: %v", err)
	}
	acct, _ = f.store.Account(ctx, "acct-a")
	if acct.Provider.RecipientCode != code {
		t.Fatal("recipient code should be reused for the same destination")
	}

	other := bank
	other.AccountNumber = "9999999999"
	if _, err := f.service.Withdraw(ctx, PayoutInput{AccountID: "acct-a", Recipient: other, Amount: 10, PIN: "1234"}); err != nil {
		t.Fatalf("third withdraw: %v", err)
	}
	acct, _ = f.store.Account(ctx, "acct-a")
	if acct.Provider.RecipientCode == code || acct.Provider.RecipientDestination != other.Destination() {
		t.Fatal("new destination should replace the cached recipient")
	}
}

func TestBankTransfer(t *testing.T) {
	f := newFixture(t)

	res, err := f.service.BankTransfer(context.Background(), PayoutInput{AccountID: "acct-b", Recipient: bank, Amount: 300, PIN: "1234", Reference: "bank-1"})
	if err != nil {
		t.Fatalf("bank transfer: %v", err)
	}
	rec := res.Primary()
	if rec.Kind != ledger.KindSend || rec.Recipient == nil || rec.Recipient.AccountNumber != bank.AccountNumber {
		t.Fatalf("unexpected record %+v", rec)
	}
	if b := f.balance(t, "acct-b"); b != 100 {
		t.Fatalf("expected 500-300-100, got %d", b)
	}
}

func TestPayoutValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Withdraw(ctx, PayoutInput{AccountID: "acct-a", Recipient: ledger.ExternalRecipient{}, Amount: 100, PIN: "1234"}); !errors.Is(err, ledger.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if _, err := f.service.BankTransfer(ctx, PayoutInput{AccountID: "acct-a", Recipient: bank, Amount: 0, PIN: "1234"}); !errors.Is(err, ledger.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := f.service.Withdraw(ctx, PayoutInput{AccountID: "acct-a", Recipient: bank, Amount: 1_000, PIN: "1234"}); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if a := f.balance(t, "acct-a"); a != 500 {
		t.Fatalf("balance changed to %d", a)
	}
}

type countingRecipients struct {
	Recipients
	calls int
}

func (r *countingRecipients) EnsureRecipient(ctx context.Context, accountID string, rec ledger.ExternalRecipient) (string, error) {
	r.calls++
	return r.Recipients.EnsureRecipient(ctx, accountID, rec)
}

func (r *countingRecipients) NewRecipient(ctx context.Context, rec ledger.ExternalRecipient) (string, error) {
	r.calls++
	return r.Recipients.NewRecipient(ctx, rec)
}

func TestPayoutWrongPINSkipsGateway(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	recipients := &countingRecipients{Recipients: f.accounts}
	svc := NewService(f.engine, recipients, f.guard, f.notifier, fees, logging.Discard())

	if _, err := svc.BankTransfer(ctx, PayoutInput{AccountID: "acct-a", Recipient: bank, Amount: 100, PIN: "0000"}); !errors.Is(err, ledger.ErrInvalidPin) {
		t.Fatalf("expected invalid pin, got %v", err)
	}
	if _, err := svc.Withdraw(ctx, PayoutInput{AccountID: "acct-a", Recipient: bank, Amount: 100, PIN: "0000"}); !errors.Is(err, ledger.ErrInvalidPin) {
		t.Fatalf("expected invalid pin, got %v", err)
	}
	if recipients.calls != 0 {
		t.Fatalf("recipient resolution ran %d times on a wrong pin", recipients.calls)
	}
	acct, err := f.store.Account(ctx, "acct-a")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acct.Provider.RecipientCode != "" || acct.Balance != 500 {
		t.Fatalf("wrong pin left side effects: %+v", acct)
	}
}
