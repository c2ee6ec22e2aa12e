package ledger

import (
	"context"
	"time"
)

// Store persists accounts and transaction records. Every balance mutation goes
// through WithinTx; the remaining methods read committed state or touch
// account metadata only.
type Store interface {
	// WithinTx runs fn as one unit of work. It commits only when fn returns nil;
	// any error, including a failed commit, leaves no trace of fn's writes.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateAccount(ctx context.Context, account Account) error
	Account(ctx context.Context, id string) (Account, error)
	SetPINHash(ctx context.Context, id string, hash []byte) error
	SetProviderRefs(ctx context.Context, id string, refs ProviderRefs) error

	Record(ctx context.Context, reference string) (Record, error)
	ListRecords(ctx context.Context, accountID string, filter ListFilter) ([]Record, error)
}

// Tx is the view of the store inside a unit of work. Lock methods hold the
// row until the unit of work ends.
type Tx interface {
	LockAccount(ctx context.Context, id string) (Account, error)
	AddBalance(ctx context.Context, id string, delta int64) (int64, error)

	InsertRecord(ctx context.Context, record Record) error
	// LockCorrelated locks every leg sharing the correlation, ordered by reference.
	LockCorrelated(ctx context.Context, correlation string) ([]Record, error)
	UpdateRecord(ctx context.Context, reference string, status Status, providerTxID string, at time.Time) error
}
