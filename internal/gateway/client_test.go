package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/congo-pay/congo_ledger/internal/ledger"
	"github.com/congo-pay/congo_ledger/internal/logging"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{
		BaseURL:   srv.URL,
		SecretKey: "sk_test",
		Timeout:   time.Second,
		Logger:    logging.Discard(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func writeEnvelope(w http.ResponseWriter, status int, ok bool, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": ok, "message": "msg", "data": data})
}

func TestInitializeCharge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("missing bearer token")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["reference"] != "ref-1" || body["amount"] != float64(5000) {
			t.Errorf("unexpected body %v", body)
		}
		writeEnvelope(w, http.StatusOK, true, map[string]any{
			"authorization_url": "https://checkout/abc",
			"access_code":       "abc",
		})
	})

	charge, err := client.InitializeCharge(context.Background(), ledger.ChargeRequest{Reference: "ref-1", Amount: 5000, Email: "a@b.c"})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if charge.AccessCode != "abc" || charge.AuthorizationURL != "https://checkout/abc" {
		t.Fatalf("unexpected charge %+v", charge)
	}
}

func TestVerifyCharge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/ref-2" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeEnvelope(w, http.StatusOK, true, map[string]any{
			"id": 991, "reference": "ref-2", "status": "success", "amount": 700,
		})
	})

	v, err := client.VerifyCharge(context.Background(), "ref-2")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !v.Succeeded() || v.Amount != 700 || v.ID != "991" {
		t.Fatalf("unexpected verification %+v", v)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		ok     bool
		want   error
	}{
		{"server error", http.StatusBadGateway, false, ledger.ErrProviderUnavailable},
		{"rate limited", http.StatusTooManyRequests, false, ledger.ErrProviderUnavailable},
		{"client error", http.StatusBadRequest, false, ledger.ErrProviderRejected},
		{"status false", http.StatusOK, false, ledger.ErrProviderRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tc.status, tc.ok, nil)
			})
			_, err := client.CreateTransfer(context.Background(), ledger.PayoutRequest{Reference: "r", Amount: 1, RecipientCode: "RCP_1"})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	client, err := NewClient(Config{BaseURL: srv.URL, SecretKey: "sk", Timeout: 50 * time.Millisecond, Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.CreateTransferRecipient(context.Background(), ledger.ExternalRecipient{BankCode: "058", AccountNumber: "0123456789", AccountName: "Ada"})
	if !errors.Is(err, ledger.ErrProviderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusServiceUnavailable, false, nil)
	})

	for i := 0; i < tripAfterFailures+3; i++ {
		_, err := client.VerifyCharge(context.Background(), "ref")
		if !errors.Is(err, ledger.ErrProviderUnavailable) {
			t.Fatalf("call %d: expected unavailable, got %v", i, err)
		}
	}
	if got := hits.Load(); got != tripAfterFailures {
		t.Fatalf("expected %d upstream hits before the breaker opened, got %d", tripAfterFailures, got)
	}
}

func TestRejectionsDoNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusBadRequest, false, nil)
	})

	for i := 0; i < tripAfterFailures+2; i++ {
		_, _ = client.VerifyCharge(context.Background(), "ref")
	}
	if got := hits.Load(); got != tripAfterFailures+2 {
		t.Fatalf("expected every call to reach upstream, got %d", got)
	}
}

func TestStaticGatewayVerifiesOwnCharges(t *testing.T) {
	g := NewStaticGateway()
	ctx := context.Background()
	if _, err := g.InitializeCharge(ctx, ledger.ChargeRequest{Reference: "dep-1", Amount: 1200}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	v, err := g.VerifyCharge(ctx, "dep-1")
	if err != nil || !v.Succeeded() || v.Amount != 1200 {
		t.Fatalf("unexpected verification %+v err=%v", v, err)
	}
	v, _ = g.VerifyCharge(ctx, "unknown")
	if !v.Failed() {
		t.Fatalf("unknown charge should verify as failed, got %+v", v)
	}
}
