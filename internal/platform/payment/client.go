// Package payment is a client for the Paystack-style payment gateway used to
// charge cards, pay merchants out, verify charges and refund them.
package payment

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
	"strings"
	"time"

	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Gateway statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// ChargeRequest charges a saved card authorization
type ChargeRequest struct {
	Reference         string
	Amount            int64 // Stored in kobo/minor units
	Currency          string
	Email             string
	AuthorizationCode string // Card token
	Metadata          shared.PaymentEventMetadata
}

// ChargeResult is the gateway's view of a charge
type ChargeResult struct {
	Reference       string `json:"reference"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	GatewayResponse string `json:"gateway_response"`
}

// TransferRequest pays a merchant out of the platform balance
type TransferRequest struct {
	Reference string
	Recipient string // Merchant transfer recipient code
	Amount    int64
	Currency  string
	Reason    string
}

// TransferResult describes an initiated transfer
type TransferResult struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
}

// VerifyResult is the authoritative state of a charge
type VerifyResult struct {
	Reference string                      `json:"reference"`
	Status    string                      `json:"status"`
	Amount    int64                       `json:"amount"`
	Currency  string                      `json:"currency"`
	PaidAt    *time.Time                  `json:"paid_at"`
	Metadata  shared.PaymentEventMetadata `json:"metadata"`
}

// RefundRequest returns all or part of a charge to the card
type RefundRequest struct {
	ChargeReference string
	Amount          int64
	Reason          string
}

// RefundResult describes a queued refund
type RefundResult struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the gateway's REST API
type Client struct {
	baseURL        string
	secretKey      string
	transferSource string
	httpClient     *http.Client
	logger         *slog.Logger
}

func NewClient(cfg *config.PaymentConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:      cfg.SecretKey,
		transferSource: cfg.TransferSource,
		httpClient:     &http.Client{Timeout: cfg.ChargeTimeout},
		logger:         logger,
	}
}

// Charge debits a card authorization
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	body := map[string]any{
		"reference":          req.Reference,
		"amount":             req.Amount,
		"currency":           req.Currency,
		"email":              req.Email,
		"authorization_code": req.AuthorizationCode,
		"metadata":           req.Metadata,
	}

	var result ChargeResult
	if err := c.do(ctx, "charge", http.MethodPost, "/transaction/charge_authorization", body, &result); err != nil {
		return nil, err
	}
	if result.Status != StatusSuccess {
		return nil, shared.ErrExternalPaymentFailed{Operation: "charge", Reason: nonEmpty(result.GatewayResponse, result.Status)}
	}
	return &result, nil
}

// Transfer pays a merchant. The reference makes retries safe.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	body := map[string]any{
		"source":    c.transferSource,
		"reference": req.Reference,
		"recipient": req.Recipient,
		"amount":    req.Amount,
		"currency":  req.Currency,
		"reason":    req.Reason,
	}

	var result TransferResult
	if err := c.do(ctx, "transfer", http.MethodPost, "/transfer", body, &result); err != nil {
		return nil, err
	}
	if result.Status == StatusFailed {
		return nil, shared.ErrExternalPaymentFailed{Operation: "transfer", Reason: "transfer " + result.TransferCode + " failed"}
	}
	return &result, nil
}

// Verify fetches the charge by reference. It has no side effects.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	var result VerifyResult
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := c.do(ctx, "verify", http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Refund returns money to the card behind a charge
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	body := map[string]any{
		"transaction":   req.ChargeReference,
		"amount":        req.Amount,
		"merchant_note": req.Reason,
	}

	var result RefundResult
	if err := c.do(ctx, "refund", http.MethodPost, "/refund", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		reason := "gateway unreachable"
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		c.logger.Error("Payment gateway call failed", "op", op, "error", err, "duration", time.Since(start))
		return shared.ErrExternalPaymentFailed{Operation: op, Reason: reason, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return shared.ErrExternalPaymentFailed{Operation: op, Reason: "failed to read response", Cause: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return shared.ErrExternalPaymentFailed{Operation: op, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		return shared.ErrExternalPaymentFailed{Operation: op, Reason: "malformed response", Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Status {
		c.logger.Warn("Payment gateway rejected request", "op", op, "status_code", resp.StatusCode, "message", env.Message)
		return shared.ErrExternalPaymentFailed{Operation: op, Reason: nonEmpty(env.Message, fmt.Sprintf("status %d", resp.StatusCode))}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return shared.ErrExternalPaymentFailed{Operation: op, Reason: "malformed response data", Cause: err}
		}
	}

	c.logger.Debug("Payment gateway call succeeded", "op", op, "duration", time.Since(start))
	return nil
}

func nonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "unknown"
}
