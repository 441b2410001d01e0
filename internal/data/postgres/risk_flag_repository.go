package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/risk"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

// RiskFlagRepository implements the risk.Repository interface for PostgreSQL
type RiskFlagRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewRiskFlagRepository(logger *slog.Logger, db *persistence.PostgresDB) risk.Repository {
	return &RiskFlagRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// Upsert records the flag, refreshing the figures of an existing one
func (r *RiskFlagRepository) Upsert(ctx context.Context, flag *risk.UserRiskFlag) error {
	query := `
		INSERT INTO user_risk_flags (user_id, dispute_rate, dispute_count, transaction_count, flagged_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET dispute_rate = EXCLUDED.dispute_rate, dispute_count = EXCLUDED.dispute_count, transaction_count = EXCLUDED.transaction_count
	`

	_, err := r.querier.Exec(ctx, query, flag.UserID, flag.DisputeRate, flag.DisputeCount, flag.TransactionCount, flag.FlaggedAt)
	if err != nil {
		r.logger.Error("Failed to upsert risk flag", "user_id", flag.UserID, "error", err)
		return fmt.Errorf("failed to upsert risk flag: %w", err)
	}
	return nil
}

func (r *RiskFlagRepository) GetByUser(ctx context.Context, userID string) (*risk.UserRiskFlag, error) {
	query := `
		SELECT user_id, dispute_rate, dispute_count, transaction_count, flagged_at
		FROM user_risk_flags
		WHERE user_id = $1
	`

	var f risk.UserRiskFlag
	err := r.querier.QueryRow(ctx, query, userID).Scan(&f.UserID, &f.DisputeRate, &f.DisputeCount, &f.TransactionCount, &f.FlaggedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, risk.ErrFlagNotFound{UserID: userID}
		}
		r.logger.Error("Failed to get risk flag", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get risk flag: %w", err)
	}
	return &f, nil
}
