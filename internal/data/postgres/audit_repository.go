package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

// AuditRepository implements escrow.AuditRepository. Rows are insert-only;
// the table trigger rejects updates and deletes.
type AuditRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewAuditRepository(logger *slog.Logger, db *persistence.PostgresDB) escrow.AuditRepository {
	return &AuditRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *AuditRepository) WithTx(tx pgx.Tx) escrow.AuditRepository {
	return &AuditRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Append inserts one audit row
func (r *AuditRepository) Append(ctx context.Context, entry *escrow.AuditLog) error {
	query := `
		INSERT INTO escrow_audit_logs (id, escrow_hold_id, from_state, to_state, actor_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.querier.Exec(ctx, query,
		entry.ID,
		entry.HoldID,
		entry.FromState,
		entry.ToState,
		entry.ActorID,
		entry.Reason,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append escrow audit log",
			"hold_id", entry.HoldID.String(),
			"to_state", string(entry.ToState),
			"error", err,
		)
		return fmt.Errorf("failed to append escrow audit log: %w", err)
	}

	return nil
}

// ListByHold returns the trail in insertion order. seq breaks ties between
// rows sharing a created_at.
func (r *AuditRepository) ListByHold(ctx context.Context, holdID uuid.UUID) ([]*escrow.AuditLog, error) {
	query := `
		SELECT id, escrow_hold_id, from_state, to_state, actor_id, reason, created_at
		FROM escrow_audit_logs
		WHERE escrow_hold_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.querier.Query(ctx, query, holdID)
	if err != nil {
		r.logger.Error("Failed to list escrow audit logs", "hold_id", holdID.String(), "error", err)
		return nil, fmt.Errorf("failed to list escrow audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*escrow.AuditLog
	for rows.Next() {
		var e escrow.AuditLog
		if err := rows.Scan(&e.ID, &e.HoldID, &e.FromState, &e.ToState, &e.ActorID, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan escrow audit log: %w", err)
		}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over escrow audit logs: %w", err)
	}

	return entries, nil
}
