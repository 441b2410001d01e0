// Package postgres provides PostgreSQL implementations of the domain repositories.
// Every repository runs against either the pool or a pgx.Tx through
// persistence.Querier so callers can group writes atomically.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

const holdColumns = `id, transaction_id, payer_id, merchant_id, amount, currency, state, held_at, released_at, reminder_level, version, created_at, updated_at`

// HoldRepository implements the escrow.Repository interface for PostgreSQL
type HoldRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewHoldRepository creates a new PostgreSQL escrow hold repository
func NewHoldRepository(logger *slog.Logger, db *persistence.PostgresDB) escrow.Repository {
	return &HoldRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *HoldRepository) WithTx(tx pgx.Tx) escrow.Repository {
	return &HoldRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanHold(row pgx.Row) (*escrow.Hold, error) {
	var h escrow.Hold
	err := row.Scan(
		&h.ID,
		&h.TransactionID,
		&h.PayerID,
		&h.MerchantID,
		&h.Amount,
		&h.Currency,
		&h.State,
		&h.HeldAt,
		&h.ReleasedAt,
		&h.ReminderLevel,
		&h.Version,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Create inserts a new hold. A second hold for the same transaction is a conflict.
func (r *HoldRepository) Create(ctx context.Context, h *escrow.Hold) error {
	query := `
		INSERT INTO escrow_holds (` + holdColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.querier.Exec(ctx, query,
		h.ID,
		h.TransactionID,
		h.PayerID,
		h.MerchantID,
		h.Amount,
		h.Currency,
		h.State,
		h.HeldAt,
		h.ReleasedAt,
		h.ReminderLevel,
		h.Version,
		h.CreatedAt,
		h.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, "escrow_holds_transaction_id_key") {
			return shared.ErrStorageConflict{Entity: "escrow_hold", ID: h.TransactionID.String(), Cause: err}
		}
		r.logger.Error("Failed to create escrow hold", "hold_id", h.ID.String(), "error", err)
		return fmt.Errorf("failed to create escrow hold: %w", err)
	}

	return nil
}

// GetByID retrieves a hold without locking it
func (r *HoldRepository) GetByID(ctx context.Context, id uuid.UUID) (*escrow.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM escrow_holds
		WHERE id = $1
	`

	h, err := scanHold(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.ErrHoldNotFound{HoldID: id}
		}
		r.logger.Error("Failed to get escrow hold", "hold_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow hold: %w", err)
	}

	return h, nil
}

// GetByTransactionID retrieves the hold owned by a transaction
func (r *HoldRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*escrow.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM escrow_holds
		WHERE transaction_id = $1
	`

	h, err := scanHold(r.querier.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.ErrHoldNotFound{}
		}
		r.logger.Error("Failed to get escrow hold by transaction", "transaction_id", transactionID.String(), "error", err)
		return nil, fmt.Errorf("failed to get escrow hold by transaction: %w", err)
	}

	return h, nil
}

// LockForUpdate reads the hold with a row lock held until the surrounding
// transaction ends. Concurrent transitions on the same hold queue here.
func (r *HoldRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*escrow.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM escrow_holds
		WHERE id = $1
		FOR UPDATE
	`

	h, err := scanHold(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, escrow.ErrHoldNotFound{HoldID: id}
		}
		r.logger.Error("Failed to lock escrow hold", "hold_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock escrow hold: %w", err)
	}

	return h, nil
}

// UpdateState writes state, released_at and version if the stored version
// still equals expectedVersion
func (r *HoldRepository) UpdateState(ctx context.Context, h *escrow.Hold, expectedVersion int) error {
	query := `
		UPDATE escrow_holds
		SET state = $1, released_at = $2, version = $3, updated_at = $4
		WHERE id = $5 AND version = $6
	`

	result, err := r.querier.Exec(ctx, query,
		h.State,
		h.ReleasedAt,
		h.Version,
		h.UpdatedAt,
		h.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update escrow hold state", "hold_id", h.ID.String(), "error", err)
		return fmt.Errorf("failed to update escrow hold state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStorageConflict{Entity: "escrow_hold", ID: h.ID.String()}
	}

	return nil
}

// ListEligibleForRelease pages through HELD holds older than cutoff in
// (held_at, id) order
func (r *HoldRepository) ListEligibleForRelease(ctx context.Context, cutoff time.Time, after escrow.Cursor, limit int) ([]*escrow.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM escrow_holds
		WHERE state = $1 AND held_at < $2 AND (held_at, id) > ($3, $4)
		ORDER BY held_at ASC, id ASC
		LIMIT $5
	`

	return r.list(ctx, "eligible escrow holds", query, escrow.StateHeld, cutoff, after.HeldAt, after.ID, limit)
}

// ListDueForReminder returns HELD holds captured between heldAfter and
// heldBefore whose reminder level is still below level
func (r *HoldRepository) ListDueForReminder(ctx context.Context, heldBefore, heldAfter time.Time, level int, limit int) ([]*escrow.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM escrow_holds
		WHERE state = $1 AND held_at < $2 AND held_at > $3 AND reminder_level < $4
		ORDER BY held_at ASC
		LIMIT $5
	`

	return r.list(ctx, "escrow holds due for reminder", query, escrow.StateHeld, heldBefore, heldAfter, level, limit)
}

func (r *HoldRepository) list(ctx context.Context, what, query string, args ...interface{}) ([]*escrow.Hold, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list "+what, "error", err)
		return nil, fmt.Errorf("failed to list %s: %w", what, err)
	}
	defer rows.Close()

	var holds []*escrow.Hold
	for rows.Next() {
		h, err := scanHold(rows)
		if err != nil {
			r.logger.Error("Failed to scan escrow hold", "error", err)
			return nil, fmt.Errorf("failed to scan escrow hold: %w", err)
		}
		holds = append(holds, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over %s: %w", what, err)
	}

	return holds, nil
}

// AdvanceReminderLevel raises reminder_level to level for a still-HELD hold.
// It reports false when another sweep already sent that reminder.
func (r *HoldRepository) AdvanceReminderLevel(ctx context.Context, id uuid.UUID, level int) (bool, error) {
	query := `
		UPDATE escrow_holds
		SET reminder_level = $1, updated_at = NOW()
		WHERE id = $2 AND state = $3 AND reminder_level < $1
	`

	result, err := r.querier.Exec(ctx, query, level, id, escrow.StateHeld)
	if err != nil {
		r.logger.Error("Failed to advance reminder level", "hold_id", id.String(), "error", err)
		return false, fmt.Errorf("failed to advance reminder level: %w", err)
	}

	return result.RowsAffected() == 1, nil
}
