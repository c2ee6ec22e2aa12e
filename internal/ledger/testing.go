package ledger

// SeedBalance is a test helper that sets the balance of an account held by the in-memory store.
func SeedBalance(s Store, accountID string, amount int64) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		a := mem.accounts[accountID]
		a.ID = accountID
		a.Balance = amount
		mem.accounts[accountID] = a
	}
}
