package ledger

import "fmt"

var transitions = map[Status][]Status{
	StatusPending:    {StatusSuccessful, StatusFailed, StatusDeclined, StatusCancelled},
	StatusSuccessful: {StatusReversed},
}

// CanTransition reports whether the state machine allows moving from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return nil
}

// delta returns the balance change a transition applies to the record's account.
// Debiting records are charged at creation, crediting records only on settlement,
// so each compensation runs exactly once per legal transition.
func delta(r Record, to Status) int64 {
	switch {
	case to == StatusSuccessful && !r.Kind.Debits():
		return r.Amount
	case to == StatusReversed && r.Kind.Debits():
		return r.Debit()
	case to == StatusReversed:
		return -r.Amount
	case to == StatusSuccessful:
		return 0
	case r.Status == StatusPending && r.Kind.Debits():
		// failed, declined or cancelled: the speculative debit is refunded
		return r.Debit()
	}
	return 0
}
