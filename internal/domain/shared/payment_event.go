package shared

import (
	"time"
)

// Payment gateway event names
const (
	PaymentEventChargeSuccess = "charge.success"
)

// PaymentEventMetadata is the checkout context the web layer attaches to a charge.
// WalletAmount is the part of the order paid from WalletID on top of the charge.
type PaymentEventMetadata struct {
	UserID       string `json:"user_id"`
	MerchantID   string `json:"merchant_id"`
	WalletID     string `json:"wallet_id,omitempty"`
	WalletAmount int64  `json:"wallet_amount,omitempty"`
	OrderID      string `json:"order_id,omitempty"`
}

// PaymentEvent defines a Kafka message carrying a verified-signature gateway webhook
type PaymentEvent struct {
	Event         string               `json:"event"`
	Reference     string               `json:"reference"`
	Amount        int64                `json:"amount"` // Stored in kobo/minor units
	Currency      string               `json:"currency"`
	CustomerEmail string               `json:"customer_email,omitempty"`
	Metadata      PaymentEventMetadata `json:"metadata"`
	CorrelationID string               `json:"correlation_id"`
	ReceivedAt    time.Time            `json:"received_at"`
}
