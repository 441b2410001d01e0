package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Status of an external movement
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Record documents one executed external money movement for reconciliation
type Record struct {
	Reference          string            `json:"reference" bson:"reference"`
	HoldID             uuid.UUID         `json:"escrow_hold_id" bson:"escrow_hold_id"`
	TransactionID      uuid.UUID         `json:"transaction_id" bson:"transaction_id"`
	MerchantID         string            `json:"merchant_id" bson:"merchant_id"`
	Kind               shared.EffectKind `json:"kind" bson:"kind"`
	Amount             int64             `json:"amount" bson:"amount"` // Stored in kobo/minor units
	Currency           string            `json:"currency" bson:"currency"`
	Status             Status            `json:"status" bson:"status"`
	ProcessorReference string            `json:"processor_reference,omitempty" bson:"processor_reference,omitempty"`
	FailureReason      string            `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	CreatedAt          time.Time         `json:"created_at" bson:"created_at"`
	ProcessedAt        *time.Time        `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
}

// Repository manages settlement records
type Repository interface {
	// Upsert writes the record keyed by reference so retried effects do not duplicate
	Upsert(ctx context.Context, record *Record) error
	GetByReference(ctx context.Context, reference string) (*Record, error)
	ListByHold(ctx context.Context, holdID uuid.UUID) ([]*Record, error)
	ListByMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*Record, error)
}

// ErrRecordNotFound indicates missing settlement record
type ErrRecordNotFound struct {
	Reference string
}

func (e ErrRecordNotFound) Error() string {
	return "settlement record not found: " + e.Reference
}

// Is matches any ErrRecordNotFound when the target has no Reference
func (e ErrRecordNotFound) Is(target error) bool {
	t, ok := target.(ErrRecordNotFound)
	if !ok {
		return false
	}
	return t.Reference == "" || t.Reference == e.Reference
}
