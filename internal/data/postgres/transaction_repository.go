package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/transaction"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

const transactionColumns = `id, user_id, wallet_id, merchant_id, amount, wallet_amount, currency, type, status, reference, escrow_hold_id, description, created_at, updated_at`

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

func (r *TransactionRepository) WithTx(tx pgx.Tx) transaction.Repository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var t transaction.Transaction
	var merchantID *string
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.WalletID,
		&merchantID,
		&t.Amount,
		&t.WalletAmount,
		&t.Currency,
		&t.Type,
		&t.Status,
		&t.Reference,
		&t.EscrowHoldID,
		&t.Description,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if merchantID != nil {
		t.MerchantID = *merchantID
	}
	return &t, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts a transaction. A reused reference is ErrDuplicateReference.
func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.querier.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.WalletID,
		nullableString(t.MerchantID),
		t.Amount,
		t.WalletAmount,
		t.Currency,
		t.Type,
		t.Status,
		t.Reference,
		t.EscrowHoldID,
		t.Description,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, "transactions_reference_key") {
			return transaction.ErrDuplicateReference{Reference: t.Reference}
		}
		r.logger.Error("Failed to create transaction", "transaction_id", t.ID.String(), "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by its ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1
	`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to get transaction", "transaction_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// GetByReference retrieves a transaction by its external reference
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE reference = $1
	`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{Reference: reference}
		}
		r.logger.Error("Failed to get transaction by reference", "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to get transaction by reference: %w", err)
	}
	return t, nil
}

// LockForUpdate reads the transaction under a row lock
func (r *TransactionRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`

	t, err := scanTransaction(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{TransactionID: id}
		}
		r.logger.Error("Failed to lock transaction", "transaction_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	return t, nil
}

// UpdateStatus is a compare-and-set on status. Zero matched rows means a
// concurrent writer moved it first.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to shared.TransactionStatus) error {
	query := `
		UPDATE transactions
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`

	result, err := r.querier.Exec(ctx, query, to, id, from)
	if err != nil {
		r.logger.Error("Failed to update transaction status",
			"transaction_id", id.String(),
			"from", string(from),
			"to", string(to),
			"error", err,
		)
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStorageConflict{Entity: "transaction", ID: id.String()}
	}

	return nil
}

// LinkHold records the escrow hold owned by the transaction
func (r *TransactionRepository) LinkHold(ctx context.Context, id uuid.UUID, holdID uuid.UUID) error {
	query := `
		UPDATE transactions
		SET escrow_hold_id = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, holdID, id)
	if err != nil {
		r.logger.Error("Failed to link escrow hold", "transaction_id", id.String(), "hold_id", holdID.String(), "error", err)
		return fmt.Errorf("failed to link escrow hold: %w", err)
	}

	if result.RowsAffected() == 0 {
		return transaction.ErrTransactionNotFound{TransactionID: id}
	}

	return nil
}

// CountByUser counts the user's escrow-backed debits. Wallet reservations
// that fund a checkout are excluded so one purchase counts once.
func (r *TransactionRepository) CountByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND type = $2 AND escrow_hold_id IS NOT NULL
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, userID, shared.TransactionTypeDebit).Scan(&count); err != nil {
		r.logger.Error("Failed to count transactions", "user_id", userID, "error", err)
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
