package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/congo-pay/congo_ledger/internal/ledger"
)

// EventKind is the gateway's event name.
type EventKind string

const (
	ChargeSuccess    EventKind = "charge.success"
	ChargeFailed     EventKind = "charge.failed"
	TransferSuccess  EventKind = "transfer.success"
	TransferFailed   EventKind = "transfer.failed"
	TransferReversed EventKind = "transfer.reversed"
)

// Event is a decoded webhook. Amount and Status are the gateway's claims and
// are never applied to balances.
type Event struct {
	Kind       EventKind
	Reference  string
	Amount     int64
	Status     string
	ProviderID string
}

// rule is the transition an event kind drives.
type rule struct {
	to          ledger.Status
	kinds       []ledger.Kind
	checkAmount bool
}

var rules = map[EventKind]rule{
	ChargeSuccess:    {to: ledger.StatusSuccessful, kinds: []ledger.Kind{ledger.KindDeposit}, checkAmount: true},
	ChargeFailed:     {to: ledger.StatusDeclined, kinds: []ledger.Kind{ledger.KindDeposit}},
	TransferSuccess:  {to: ledger.StatusSuccessful, kinds: []ledger.Kind{ledger.KindSend, ledger.KindWithdraw}},
	TransferFailed:   {to: ledger.StatusFailed, kinds: []ledger.Kind{ledger.KindSend, ledger.KindWithdraw}},
	TransferReversed: {to: ledger.StatusReversed, kinds: []ledger.Kind{ledger.KindSend, ledger.KindWithdraw}},
}

// Known reports whether the event kind drives a transition.
func (k EventKind) Known() bool {
	_, ok := rules[k]
	return ok
}

type wireEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference    string          `json:"reference"`
		Amount       int64           `json:"amount"`
		Status       string          `json:"status"`
		ID           json.RawMessage `json:"id"`
		TransferCode string          `json:"transfer_code"`
	} `json:"data"`
}

// Decode parses a webhook body. Unknown event kinds decode without error and
// report Known() == false.
func Decode(payload []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, fmt.Errorf("%w: decode event: %v", ledger.ErrInvalidRequest, err)
	}
	ev := Event{
		Kind:      EventKind(w.Event),
		Reference: w.Data.Reference,
		Amount:    w.Data.Amount,
		Status:    w.Data.Status,
	}
	if !ev.Kind.Known() {
		return ev, nil
	}
	if ev.Reference == "" {
		return Event{}, fmt.Errorf("%w: event %s has no reference", ledger.ErrInvalidRequest, ev.Kind)
	}
	ev.ProviderID = w.Data.TransferCode
	if ev.ProviderID == "" {
		ev.ProviderID = rawID(w.Data.ID)
	}
	return ev, nil
}

// rawID renders a JSON id that may be a number or a string.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
