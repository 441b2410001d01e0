package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/dispute"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

// DisputeRepository implements the dispute.Repository interface for PostgreSQL
type DisputeRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewDisputeRepository(logger *slog.Logger, db *persistence.PostgresDB) dispute.Repository {
	return &DisputeRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *DisputeRepository) WithTx(tx pgx.Tx) dispute.Repository {
	return &DisputeRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts an open dispute. A hold has at most one open dispute.
func (r *DisputeRepository) Create(ctx context.Context, d *dispute.Dispute) error {
	query := `
		INSERT INTO disputes (id, escrow_hold_id, raised_by, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.querier.Exec(ctx, query, d.ID, d.HoldID, d.RaisedBy, d.Description, d.Status, d.CreatedAt)
	if err != nil {
		if persistence.IsUniqueViolation(err, "idx_disputes_one_open_per_hold") {
			return shared.ErrStorageConflict{Entity: "dispute", ID: d.HoldID.String(), Cause: err}
		}
		r.logger.Error("Failed to create dispute", "hold_id", d.HoldID.String(), "error", err)
		return fmt.Errorf("failed to create dispute: %w", err)
	}

	return nil
}

// GetOpenByHold returns the open dispute on a hold
func (r *DisputeRepository) GetOpenByHold(ctx context.Context, holdID uuid.UUID) (*dispute.Dispute, error) {
	query := `
		SELECT id, escrow_hold_id, raised_by, description, status, resolution_note, resolved_by, created_at, resolved_at
		FROM disputes
		WHERE escrow_hold_id = $1 AND status = $2
	`

	var d dispute.Dispute
	err := r.querier.QueryRow(ctx, query, holdID, dispute.StatusOpen).Scan(
		&d.ID,
		&d.HoldID,
		&d.RaisedBy,
		&d.Description,
		&d.Status,
		&d.ResolutionNote,
		&d.ResolvedBy,
		&d.CreatedAt,
		&d.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, dispute.ErrOpenDisputeNotFound{HoldID: holdID}
		}
		r.logger.Error("Failed to get open dispute", "hold_id", holdID.String(), "error", err)
		return nil, fmt.Errorf("failed to get open dispute: %w", err)
	}

	return &d, nil
}

// Resolve closes an open dispute
func (r *DisputeRepository) Resolve(ctx context.Context, d *dispute.Dispute) error {
	query := `
		UPDATE disputes
		SET status = $1, resolution_note = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $5 AND status = $6
	`

	result, err := r.querier.Exec(ctx, query, d.Status, d.ResolutionNote, d.ResolvedBy, d.ResolvedAt, d.ID, dispute.StatusOpen)
	if err != nil {
		r.logger.Error("Failed to resolve dispute", "dispute_id", d.ID.String(), "error", err)
		return fmt.Errorf("failed to resolve dispute: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStorageConflict{Entity: "dispute", ID: d.ID.String()}
	}

	return nil
}

// CountByUser counts every dispute the user raised
func (r *DisputeRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM disputes
		WHERE raised_by = $1
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.logger.Error("Failed to count disputes", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to count disputes: %w", err)
	}
	return count, nil
}
