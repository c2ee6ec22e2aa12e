package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/congo-pay/congo_ledger/internal/ledger"
)

// Gateway is the full set of payment gateway calls the services use.
type Gateway interface {
	ledger.Provider
	VerifyCharge(ctx context.Context, reference string) (Verification, error)
	CreateTransferRecipient(ctx context.Context, r ledger.ExternalRecipient) (string, error)
}

var (
	_ Gateway = (*Client)(nil)
	_ Gateway = (*StaticGateway)(nil)
)

// StaticGateway simulates a gateway that accepts every request. Charges it
// opened verify as successful for their original amount.
type StaticGateway struct {
	mu      sync.Mutex
	charges map[string]int64
}

// NewStaticGateway constructs a StaticGateway for development and tests.
func NewStaticGateway() *StaticGateway {
	return &StaticGateway{charges: make(map[string]int64)}
}

// InitializeCharge approves the checkout with a synthetic access code.
func (g *StaticGateway) InitializeCharge(_ context.Context, req ledger.ChargeRequest) (ledger.Charge, error) {
	g.mu.Lock()
	g.charges[req.Reference] = req.Amount
	g.mu.Unlock()
	code := syntheticCode("AC")
	return ledger.Charge{
		AuthorizationURL: "https://checkout.local/" + code,
		AccessCode:       code,
	}, nil
}

// VerifyCharge reports charges opened by this gateway as successful.
func (g *StaticGateway) VerifyCharge(_ context.Context, reference string) (Verification, error) {
	g.mu.Lock()
	amount, ok := g.charges[reference]
	g.mu.Unlock()
	if !ok {
		return Verification{Reference: reference, Status: "failed"}, nil
	}
	return Verification{Reference: reference, Status: "success", Amount: amount, ID: syntheticCode("CH")}, nil
}

// CreateTransferRecipient approves the destination with a synthetic recipient code.
func (g *StaticGateway) CreateTransferRecipient(_ context.Context, _ ledger.ExternalRecipient) (string, error) {
	return syntheticCode("RCP"), nil
}

// CreateTransfer queues the payout with a synthetic transfer code.
func (g *StaticGateway) CreateTransfer(_ context.Context, _ ledger.PayoutRequest) (ledger.Payout, error) {
	return ledger.Payout{TransferCode: syntheticCode("TRF"), Status: "pending"}, nil
}

func syntheticCode(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
