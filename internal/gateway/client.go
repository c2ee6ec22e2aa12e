package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/congo-pay/congo_ledger/internal/ledger"
)

const (
	defaultTimeout     = 15 * time.Second
	tripAfterFailures  = 5
	breakerOpenTimeout = 30 * time.Second
	maxResponseBytes   = 1 << 20
)

// Recorder observes outbound gateway calls.
type Recorder interface {
	GatewayCall(operation, outcome string, elapsed time.Duration)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	SecretKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
	Recorder   Recorder
}

// Client talks to the payment gateway's REST API. Calls go through a circuit
// breaker; an open breaker is reported as ledger.ErrProviderUnavailable.
type Client struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
	http      *http.Client
	cb        *gobreaker.CircuitBreaker
	logger    *slog.Logger
	recorder  Recorder
}

// NewClient builds a gateway client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("gateway secret key is required")
	}
	c := &Client{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		timeout:   cfg.Timeout,
		http:      cfg.HTTPClient,
		logger:    cfg.Logger,
		recorder:  cfg.Recorder,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "gateway")

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfterFailures
		},
		// Rejections are answers, not outages.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ledger.ErrProviderRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return c, nil
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// InitializeCharge opens a hosted checkout for a deposit.
func (c *Client) InitializeCharge(ctx context.Context, req ledger.ChargeRequest) (ledger.Charge, error) {
	body := map[string]any{
		"reference": req.Reference,
		"amount":    req.Amount,
		"email":     req.Email,
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
	}
	if err := c.do(ctx, "initialize_charge", http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return ledger.Charge{}, err
	}
	return ledger.Charge{AuthorizationURL: out.AuthorizationURL, AccessCode: out.AccessCode}, nil
}

// Verification is the gateway's view of a charge.
type Verification struct {
	Reference string
	Status    string
	Amount    int64
	ID        string
}

// Succeeded reports whether the gateway captured the funds.
func (v Verification) Succeeded() bool { return v.Status == "success" }

// Failed reports whether the charge ended without capturing funds.
func (v Verification) Failed() bool {
	return v.Status == "failed" || v.Status == "abandoned" || v.Status == "reversed"
}

// VerifyCharge fetches the current state of a charge.
func (c *Client) VerifyCharge(ctx context.Context, reference string) (Verification, error) {
	var out struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
		Status    string      `json:"status"`
		Amount    int64       `json:"amount"`
	}
	if err := c.do(ctx, "verify_charge", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return Verification{}, err
	}
	return Verification{Reference: out.Reference, Status: out.Status, Amount: out.Amount, ID: out.ID.String()}, nil
}

// CreateTransferRecipient registers a bank destination and returns its recipient code.
func (c *Client) CreateTransferRecipient(ctx context.Context, r ledger.ExternalRecipient) (string, error) {
	body := map[string]any{
		"type":           "nuban",
		"name":           r.AccountName,
		"account_number": r.AccountNumber,
		"bank_code":      r.BankCode,
	}
	var out struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, "create_recipient", http.MethodPost, "/transferrecipient", body, &out); err != nil {
		return "", err
	}
	if out.RecipientCode == "" {
		return "", fmt.Errorf("%w: empty recipient code", ledger.ErrProviderRejected)
	}
	return out.RecipientCode, nil
}

// CreateTransfer pushes funds to a transfer recipient.
func (c *Client) CreateTransfer(ctx context.Context, req ledger.PayoutRequest) (ledger.Payout, error) {
	body := map[string]any{
		"source":    "balance",
		"reference": req.Reference,
		"amount":    req.Amount,
		"recipient": req.RecipientCode,
		"reason":    req.Reason,
	}
	var out struct {
		TransferCode string `json:"transfer_code"`
		Status       string `json:"status"`
	}
	if err := c.do(ctx, "create_transfer", http.MethodPost, "/transfer", body, &out); err != nil {
		return ledger.Payout{}, err
	}
	return ledger.Payout{TransferCode: out.TransferCode, Status: out.Status}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: circuit open", ledger.ErrProviderUnavailable)
	}

	outcome := "ok"
	switch {
	case errors.Is(err, ledger.ErrProviderRejected):
		outcome = "rejected"
	case err != nil:
		outcome = "unavailable"
	}
	if c.recorder != nil {
		c.recorder.GatewayCall(op, outcome, time.Since(start))
	}
	if err != nil {
		c.logger.Warn("gateway call failed",
			slog.String("operation", op),
			slog.Duration("elapsed", time.Since(start)),
			slog.Any("error", err))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ledger.ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d", ledger.ErrProviderUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("%w: status %d", ledger.ErrProviderRejected, resp.StatusCode)
		}
		return fmt.Errorf("%w: decode response: %v", ledger.ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		return fmt.Errorf("%w: %s", ledger.ErrProviderRejected, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode data: %v", ledger.ErrProviderUnavailable, err)
		}
	}
	return nil
}
