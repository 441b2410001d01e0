package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// SignatureHeader carries the hex HMAC-SHA512 of the raw webhook body
const SignatureHeader = "X-Paystack-Signature"

// Sign computes the webhook signature of body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

type webhookBody struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Status    string `json:"status"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata shared.PaymentEventMetadata `json:"metadata"`
	} `json:"data"`
}

// ParseWebhook turns a verified webhook body into a payment event
func ParseWebhook(body []byte, correlationID string, receivedAt time.Time) (*shared.PaymentEvent, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return nil, fmt.Errorf("failed to decode webhook: %w", err)
	}
	if wb.Event == "" || wb.Data.Reference == "" {
		return nil, fmt.Errorf("webhook is missing event or reference")
	}

	return &shared.PaymentEvent{
		Event:         wb.Event,
		Reference:     wb.Data.Reference,
		Amount:        wb.Data.Amount,
		Currency:      wb.Data.Currency,
		CustomerEmail: wb.Data.Customer.Email,
		Metadata:      wb.Data.Metadata,
		CorrelationID: correlationID,
		ReceivedAt:    receivedAt,
	}, nil
}
