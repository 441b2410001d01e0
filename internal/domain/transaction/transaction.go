package transaction

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

var (
	ErrInvalidAmount    = errors.New("transaction amount must be positive")
	ErrMissingUser      = errors.New("transaction user cannot be empty")
	ErrMissingReference = errors.New("transaction reference cannot be empty")
)

// Transaction is a ledger entry for money moving on behalf of a user. For an
// escrow debit, WalletAmount is the part of Amount that came out of WalletID.
type Transaction struct {
	ID           uuid.UUID                `json:"id"`
	UserID       string                   `json:"user_id"`
	WalletID     *uuid.UUID               `json:"wallet_id,omitempty"`
	MerchantID   string                   `json:"merchant_id,omitempty"`
	Amount       int64                    `json:"amount"` // Stored in kobo/minor units
	WalletAmount int64                    `json:"wallet_amount,omitempty"`
	Currency     string                   `json:"currency"`
	Type         shared.TransactionType   `json:"type"`
	Status       shared.TransactionStatus `json:"status"`
	Reference    string                   `json:"reference"`
	EscrowHoldID *uuid.UUID               `json:"escrow_hold_id,omitempty"`
	Description  string                   `json:"description,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
}

// New builds a transaction in the given status. Reference is the external
// idempotency key and must be unique.
func New(userID string, txType shared.TransactionType, status shared.TransactionStatus, amount int64, currency, reference string) (*Transaction, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if reference == "" {
		return nil, ErrMissingReference
	}

	now := time.Now()
	return &Transaction{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    amount,
		Currency:  currency,
		Type:      txType,
		Status:    status,
		Reference: reference,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CardAmount is the part of Amount paid by card
func (t *Transaction) CardAmount() int64 {
	return t.Amount - t.WalletAmount
}

// NewReference generates a gateway-safe reference with the given prefix
func NewReference(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
