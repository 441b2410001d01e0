package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Message is a side effect recorded in the same storage transaction as the
// hold transition that caused it
type Message struct {
	ID            int64               `json:"id"`
	HoldID        uuid.UUID           `json:"escrow_hold_id"`
	Kind          shared.EffectKind   `json:"kind"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// TransferPayload moves released funds to the merchant
type TransferPayload struct {
	Reference     string    `json:"reference"`
	TransactionID uuid.UUID `json:"transaction_id"`
	MerchantID    string    `json:"merchant_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Reason        string    `json:"reason"`
}

// RefundPayload returns card-funded money to the payer
type RefundPayload struct {
	Reference       string    `json:"reference"`
	ChargeReference string    `json:"charge_reference"`
	TransactionID   uuid.UUID `json:"transaction_id"`
	MerchantID      string    `json:"merchant_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
}

// NotificationPayload is handed to the notification sink as is
type NotificationPayload struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data,omitempty"`
}

// NewMessage encodes payload for the given effect kind
func NewMessage(holdID uuid.UUID, kind shared.EffectKind, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}

	return &Message{
		HoldID:    holdID,
		Kind:      kind,
		Payload:   raw,
		Status:    shared.OutboxStatusPending,
		Attempts:  0,
		CreatedAt: time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// Decode unmarshals the payload into dst, which must match Kind
func (m *Message) Decode(dst any) error {
	if err := json.Unmarshal(m.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload of message %d: %w", m.Kind, m.ID, err)
	}
	return nil
}
