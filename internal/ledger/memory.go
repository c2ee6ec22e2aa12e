package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	records  map[string]Record
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and development. Units of work are serialised and staged until commit.
func NewInMemory() Store {
	return &memoryStore{
		accounts: make(map[string]Account),
		records:  make(map[string]Record),
	}
}

func (s *memoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:    s,
		accounts: make(map[string]Account),
		records:  make(map[string]Record),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, a := range tx.accounts {
		s.accounts[id] = a
	}
	for ref, r := range tx.records {
		s.records[ref] = r
	}
	return nil
}

func (s *memoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; exists {
		return ErrAccountExists
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *memoryStore) Account(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *memoryStore) SetPINHash(_ context.Context, id string, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.PINHash = append([]byte(nil), hash...)
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}

func (s *memoryStore) SetProviderRefs(_ context.Context, id string, refs ProviderRefs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	a.Provider = refs
	a.UpdatedAt = time.Now().UTC()
	s.accounts[id] = a
	return nil
}

func (s *memoryStore) Record(_ context.Context, reference string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[reference]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return r, nil
}

func (s *memoryStore) ListRecords(_ context.Context, accountID string, filter ListFilter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.AccountID == accountID && filter.matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Reference > out[j].Reference
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

// memoryTx stages writes on top of the committed maps. The store mutex is held
// for the lifetime of the unit of work, which makes every lock a no-op.
type memoryTx struct {
	store    *memoryStore
	accounts map[string]Account
	records  map[string]Record
}

func (t *memoryTx) account(id string) (Account, bool) {
	if a, ok := t.accounts[id]; ok {
		return a, true
	}
	a, ok := t.store.accounts[id]
	return a, ok
}

func (t *memoryTx) record(ref string) (Record, bool) {
	if r, ok := t.records[ref]; ok {
		return r, true
	}
	r, ok := t.store.records[ref]
	return r, ok
}

func (t *memoryTx) LockAccount(_ context.Context, id string) (Account, error) {
	a, ok := t.account(id)
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (t *memoryTx) AddBalance(_ context.Context, id string, delta int64) (int64, error) {
	a, ok := t.account(id)
	if !ok {
		return 0, ErrAccountNotFound
	}
	a.Balance += delta
	a.UpdatedAt = time.Now().UTC()
	t.accounts[id] = a
	return a.Balance, nil
}

func (t *memoryTx) InsertRecord(_ context.Context, record Record) error {
	if _, exists := t.record(record.Reference); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, record.Reference)
	}
	t.records[record.Reference] = record
	return nil
}

func (t *memoryTx) LockCorrelated(_ context.Context, correlation string) ([]Record, error) {
	seen := make(map[string]struct{})
	var out []Record
	for _, m := range []map[string]Record{t.records, t.store.records} {
		for ref, r := range m {
			if _, dup := seen[ref]; dup || r.Correlation != correlation {
				continue
			}
			seen[ref] = struct{}{}
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out, nil
}

func (t *memoryTx) UpdateRecord(_ context.Context, reference string, status Status, providerTxID string, at time.Time) error {
	r, ok := t.record(reference)
	if !ok {
		return ErrRecordNotFound
	}
	r.Status = status
	r.StatusUpdatedAt = at
	if providerTxID != "" {
		r.ProviderTransactionID = providerTxID
	}
	t.records[reference] = r
	return nil
}
