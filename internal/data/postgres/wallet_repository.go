package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

// WalletRepository implements the wallet.Repository interface for PostgreSQL
type WalletRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewWalletRepository(logger *slog.Logger, db *persistence.PostgresDB) wallet.Repository {
	return &WalletRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *WalletRepository) WithTx(tx pgx.Tx) wallet.Repository {
	return &WalletRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new wallet. One wallet per user is enforced by a unique index.
func (r *WalletRepository) Create(ctx context.Context, w *wallet.Wallet) error {
	query := `
		INSERT INTO wallets (id, user_id, balance, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.querier.Exec(ctx, query,
		w.ID,
		w.UserID,
		w.Balance,
		w.Currency,
		w.Version,
		w.CreatedAt,
		w.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create wallet", "user_id", w.UserID, "error", err)
		return fmt.Errorf("failed to create wallet: %w", err)
	}

	return nil
}

func (r *WalletRepository) scanOne(row pgx.Row, notFound wallet.ErrWalletNotFound, op string) (*wallet.Wallet, error) {
	var w wallet.Wallet
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.Currency,
		&w.Version,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		r.logger.Error("Failed to "+op, "wallet_id", notFound.WalletID.String(), "user_id", notFound.UserID, "error", err)
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return &w, nil
}

// GetByID retrieves a wallet by its ID
func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	query := `
		SELECT id, user_id, balance, currency, version, created_at, updated_at
		FROM wallets
		WHERE id = $1
	`
	return r.scanOne(r.querier.QueryRow(ctx, query, id), wallet.ErrWalletNotFound{WalletID: id}, "get wallet")
}

// GetByUserID retrieves the wallet owned by a user
func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*wallet.Wallet, error) {
	query := `
		SELECT id, user_id, balance, currency, version, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`
	return r.scanOne(r.querier.QueryRow(ctx, query, userID), wallet.ErrWalletNotFound{UserID: userID}, "get wallet by user")
}

// LockByUserID obtains a pessimistic lock on the user's wallet
func (r *WalletRepository) LockByUserID(ctx context.Context, userID string) (*wallet.Wallet, error) {
	query := `
		SELECT id, user_id, balance, currency, version, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
		FOR UPDATE
	`
	return r.scanOne(r.querier.QueryRow(ctx, query, userID), wallet.ErrWalletNotFound{UserID: userID}, "lock wallet by user")
}

// LockForUpdate obtains a pessimistic lock on the wallet
func (r *WalletRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*wallet.Wallet, error) {
	query := `
		SELECT id, user_id, balance, currency, version, created_at, updated_at
		FROM wallets
		WHERE id = $1
		FOR UPDATE
	`
	return r.scanOne(r.querier.QueryRow(ctx, query, id), wallet.ErrWalletNotFound{WalletID: id}, "lock wallet")
}

// UpdateBalance writes the new balance if the stored version still matches.
// A stale version comes back as shared.ErrStorageConflict.
func (r *WalletRepository) UpdateBalance(ctx context.Context, id uuid.UUID, balance int64, version int) error {
	query := `
		UPDATE wallets
		SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
	`

	result, err := r.querier.Exec(ctx, query, balance, id, version)
	if err != nil {
		r.logger.Error("Failed to update wallet balance", "wallet_id", id.String(), "error", err)
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStorageConflict{Entity: "wallet", ID: id.String()}
	}

	return nil
}
