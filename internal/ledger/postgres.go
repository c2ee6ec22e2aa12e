package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// PostgresStore persists accounts and transaction records in PostgreSQL. Units
// of work take row locks with SELECT ... FOR UPDATE so the read-check-write of
// a balance is serialised against every other mutation of the same account.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// WithinTx runs fn inside a database transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapPgError(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return mapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// CreateAccount inserts an account with a zero balance.
func (s *PostgresStore) CreateAccount(ctx context.Context, a Account) error {
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (id, balance, pin_hash, created_at, updated_at)
        VALUES ($1, 0, $2, $3, $3)`, a.ID, a.PINHash, a.CreatedAt.UTC())
	if isPgCode(err, pgUniqueViolation) {
		return ErrAccountExists
	}
	return err
}

const accountColumns = `id, balance, pin_hash, customer_code, virtual_account, recipient_code,
        recipient_destination, created_at, updated_at`

// Account fetches committed account state.
func (s *PostgresStore) Account(ctx context.Context, id string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// SetPINHash replaces the stored PIN hash.
func (s *PostgresStore) SetPINHash(ctx context.Context, id string, hash []byte) error {
	cmd, err := s.db.Exec(ctx, `UPDATE accounts SET pin_hash = $1, updated_at = now() WHERE id = $2`, hash, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetProviderRefs caches the gateway identifiers of an account.
func (s *PostgresStore) SetProviderRefs(ctx context.Context, id string, refs ProviderRefs) error {
	cmd, err := s.db.Exec(ctx, `UPDATE accounts SET customer_code = $1, virtual_account = $2,
        recipient_code = $3, recipient_destination = $4, updated_at = now() WHERE id = $5`,
		refs.CustomerCode, refs.VirtualAccount, refs.RecipientCode, refs.RecipientDestination, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

const recordColumns = `reference, correlation, kind, amount, fee, status, account_id,
        counterparty_account_id, recipient_bank_code, recipient_account_number, recipient_account_name,
        provider_transaction_id, narration, created_at, status_updated_at`

// Record fetches a committed record by reference.
func (s *PostgresStore) Record(ctx context.Context, reference string) (Record, error) {
	return scanRecord(s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM transactions WHERE reference = $1`, reference))
}

// ListRecords lists an account's records newest first using the (account_id, created_at) index.
func (s *PostgresStore) ListRecords(ctx context.Context, accountID string, filter ListFilter) ([]Record, error) {
	var (
		where = []string{"account_id = $1"}
		args  = []any{accountID}
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.Before.IsZero() {
		args = append(args, filter.Before.UTC())
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	args = append(args, filter.limit())
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE %s
        ORDER BY created_at DESC, reference DESC LIMIT $%d`, recordColumns, strings.Join(where, " AND "), len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockAccount(ctx context.Context, id string) (Account, error) {
	return scanAccount(t.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *postgresTx) AddBalance(ctx context.Context, id string, delta int64) (int64, error) {
	var balance int64
	err := t.tx.QueryRow(ctx, `UPDATE accounts SET balance = balance + $1, updated_at = now()
        WHERE id = $2 RETURNING balance`, delta, id).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	return balance, err
}

func (t *postgresTx) InsertRecord(ctx context.Context, r Record) error {
	var bank, number, name *string
	if r.Recipient != nil {
		bank, number, name = &r.Recipient.BankCode, &r.Recipient.AccountNumber, &r.Recipient.AccountName
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO transactions (`+recordColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.Reference, r.Correlation, string(r.Kind), r.Amount, r.Fee, string(r.Status), r.AccountID,
		nullable(r.CounterpartyAccountID), bank, number, name,
		nullable(r.ProviderTransactionID), r.Narration, r.CreatedAt.UTC(), r.StatusUpdatedAt.UTC())
	if isPgCode(err, pgUniqueViolation) {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, r.Reference)
	}
	if isPgCode(err, pgForeignKeyViolation) {
		return ErrAccountNotFound
	}
	return err
}

func (t *postgresTx) LockCorrelated(ctx context.Context, correlation string) ([]Record, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+recordColumns+` FROM transactions
        WHERE correlation = $1 ORDER BY reference FOR UPDATE`, correlation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *postgresTx) UpdateRecord(ctx context.Context, reference string, status Status, providerTxID string, at time.Time) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE transactions SET status = $1, status_updated_at = $2,
        provider_transaction_id = COALESCE(NULLIF($3, ''), provider_transaction_id)
        WHERE reference = $4`, string(status), at.UTC(), providerTxID, reference)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a                                         Account
		customer, virtual, recipient, destination *string
	)
	err := row.Scan(&a.ID, &a.Balance, &a.PINHash, &customer, &virtual, &recipient, &destination, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.Provider = ProviderRefs{
		CustomerCode:         deref(customer),
		VirtualAccount:       deref(virtual),
		RecipientCode:        deref(recipient),
		RecipientDestination: deref(destination),
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		r                          Record
		kind, status               string
		counterparty, providerTxID *string
		bank, number, name         *string
	)
	err := row.Scan(&r.Reference, &r.Correlation, &kind, &r.Amount, &r.Fee, &status, &r.AccountID,
		&counterparty, &bank, &number, &name, &providerTxID, &r.Narration, &r.CreatedAt, &r.StatusUpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	r.Kind = Kind(kind)
	r.Status = Status(status)
	r.CounterpartyAccountID = deref(counterparty)
	r.ProviderTransactionID = deref(providerTxID)
	if bank != nil || number != nil {
		r.Recipient = &ExternalRecipient{BankCode: deref(bank), AccountNumber: deref(number), AccountName: deref(name)}
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.StatusUpdatedAt = r.StatusUpdatedAt.UTC()
	return r, nil
}

// mapPgError folds concurrency aborts into ErrConflict so callers can retry.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
