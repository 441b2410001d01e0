package escrow

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of an escrow hold
type State string

const (
	StateHeld     State = "HELD"
	StateReleased State = "RELEASED"
	StateDisputed State = "DISPUTED"
	StateRefunded State = "REFUNDED"
)

// Valid reports whether s is one of the four hold states.
func (s State) Valid() bool {
	switch s {
	case StateHeld, StateReleased, StateDisputed, StateRefunded:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateReleased || s == StateRefunded
}

// Reminder levels stored on a hold
const (
	ReminderNone  = 0
	ReminderFirst = 1
	ReminderFinal = 2
)

var (
	ErrInvalidAmount   = errors.New("hold amount must be positive")
	ErrMissingPayer    = errors.New("hold payer cannot be empty")
	ErrMissingMerchant = errors.New("hold merchant cannot be empty")
)

// Hold represents funds collected from a payer and withheld from a merchant
type Hold struct {
	ID            uuid.UUID  `json:"id"`
	TransactionID uuid.UUID  `json:"transaction_id"`
	PayerID       string     `json:"payer_id"`
	MerchantID    string     `json:"merchant_id"`
	Amount        int64      `json:"amount"` // Stored in kobo/minor units
	Currency      string     `json:"currency"`
	State         State      `json:"state"`
	HeldAt        time.Time  `json:"held_at"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	ReminderLevel int        `json:"reminder_level"`
	Version       int        `json:"version"` // For optimistic locking
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// NewHold creates a hold in HELD state for the given transaction
func NewHold(transactionID uuid.UUID, payerID, merchantID string, amount int64, currency string, now time.Time) (*Hold, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if payerID == "" {
		return nil, ErrMissingPayer
	}
	if merchantID == "" {
		return nil, ErrMissingMerchant
	}

	return &Hold{
		ID:            uuid.New(),
		TransactionID: transactionID,
		PayerID:       payerID,
		MerchantID:    merchantID,
		Amount:        amount,
		Currency:      currency,
		State:         StateHeld,
		HeldAt:        now,
		ReminderLevel: ReminderNone,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MoveTo sets the new state without checking legality. Callers go through
// CheckTransition first.
func (h *Hold) MoveTo(to State, at time.Time) {
	h.State = to
	if to == StateReleased {
		releasedAt := at
		h.ReleasedAt = &releasedAt
	}
	h.UpdatedAt = at
	h.Version++
}

// DueAt returns when the hold becomes eligible for auto-release.
func (h *Hold) DueAt(window time.Duration) time.Time {
	return h.HeldAt.Add(window)
}
