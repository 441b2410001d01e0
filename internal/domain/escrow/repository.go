package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Cursor positions keyset pagination over holds ordered by (held_at, id)
type Cursor struct {
	HeldAt time.Time
	ID     uuid.UUID
}

// Repository defines escrow hold persistence operations
type Repository interface {
	Create(ctx context.Context, hold *Hold) error
	GetByID(ctx context.Context, id uuid.UUID) (*Hold, error)
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*Hold, error)

	// LockForUpdate acquires a row lock for the rest of the surrounding transaction
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Hold, error)

	// UpdateState persists state, released_at and version, guarded by expectedVersion
	UpdateState(ctx context.Context, hold *Hold, expectedVersion int) error

	// ListEligibleForRelease returns HELD holds with held_at < cutoff after the cursor
	ListEligibleForRelease(ctx context.Context, cutoff time.Time, after Cursor, limit int) ([]*Hold, error)

	// ListDueForReminder returns HELD holds with heldAfter < held_at < heldBefore
	// and reminder_level < level
	ListDueForReminder(ctx context.Context, heldBefore, heldAfter time.Time, level int, limit int) ([]*Hold, error)

	// AdvanceReminderLevel moves reminder_level forward only if it is still below level
	AdvanceReminderLevel(ctx context.Context, id uuid.UUID, level int) (bool, error)

	WithTx(tx pgx.Tx) Repository
}

// AuditRepository appends and reads the per-hold audit trail
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditLog) error
	ListByHold(ctx context.Context, holdID uuid.UUID) ([]*AuditLog, error)
	WithTx(tx pgx.Tx) AuditRepository
}
