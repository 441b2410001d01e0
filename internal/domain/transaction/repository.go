package transaction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Repository defines transaction persistence operations
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByReference(ctx context.Context, reference string) (*Transaction, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Transaction, error)

	// UpdateStatus moves status only if it still equals from
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to shared.TransactionStatus) error
	LinkHold(ctx context.Context, id uuid.UUID, holdID uuid.UUID) error

	// CountByUser counts the user's escrow-backed debits, the denominator of the dispute rate
	CountByUser(ctx context.Context, userID string) (int64, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrTransactionNotFound indicates a missing transaction or reservation
type ErrTransactionNotFound struct {
	TransactionID uuid.UUID
	Reference     string
}

func (e ErrTransactionNotFound) Error() string {
	if e.Reference != "" {
		return "transaction not found for reference: " + e.Reference
	}
	return "transaction not found: " + e.TransactionID.String()
}

func (e ErrTransactionNotFound) Kind() shared.ErrorKind { return shared.KindTransactionNotFound }

// ErrReservationClosed indicates commit or rollback on a reservation that
// already reached the opposite final status
type ErrReservationClosed struct {
	TransactionID uuid.UUID
	Status        shared.TransactionStatus
}

func (e ErrReservationClosed) Error() string {
	return fmt.Sprintf("reservation %s already %s", e.TransactionID, e.Status)
}

func (e ErrReservationClosed) Kind() shared.ErrorKind { return shared.KindReservationClosed }

// ErrDuplicateReference indicates reference uniqueness violation
type ErrDuplicateReference struct {
	Reference string
}

func (e ErrDuplicateReference) Error() string {
	return "transaction with reference already exists: " + e.Reference
}
