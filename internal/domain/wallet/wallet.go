package wallet

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInvalidCurrencyFormat = errors.New("currency must be a 3-letter code")
)

// Wallet holds a user's employer-funded stipend balance
type Wallet struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"` // Stored in kobo/minor units
	Currency  string    `json:"currency"`
	Version   int       `json:"version"` // For optimistic locking
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWallet creates an empty wallet for a user
func NewWallet(userID string, currency string) (*Wallet, error) {
	if len(currency) != 3 {
		return nil, ErrInvalidCurrencyFormat
	}
	now := time.Now()
	return &Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Currency:  currency,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Reserve decrements the balance immediately. It fails without mutation when
// the balance would go negative.
func (w *Wallet) Reserve(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.Balance < amount {
		return ErrInsufficientFunds{WalletID: w.ID, Balance: w.Balance, Requested: amount}
	}

	w.Balance -= amount
	w.UpdatedAt = time.Now()
	w.Version++
	return nil
}

// Credit adds amount back to the balance
func (w *Wallet) Credit(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	w.Balance += amount
	w.UpdatedAt = time.Now()
	w.Version++
	return nil
}
