package settlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/transaction"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
)

// WalletLedger holds the only code paths that write wallet balances. Every
// method runs inside a transaction owned by the caller.
type WalletLedger struct {
	wallets      wallet.Repository
	transactions transaction.Repository
	logger       *slog.Logger
}

func NewWalletLedger(wallets wallet.Repository, transactions transaction.Repository, logger *slog.Logger) *WalletLedger {
	return &WalletLedger{
		wallets:      wallets,
		transactions: transactions,
		logger:       logger,
	}
}

// Reserve locks the user's wallet, records a pending debit and decrements the
// balance. Insufficient funds fail before anything is written.
func (l *WalletLedger) Reserve(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference, description string) (*transaction.Transaction, error) {
	wallets := l.wallets.WithTx(tx)

	w, err := wallets.LockByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("Wallet locked", "wallet_id", w.ID.String(), "bal", w.Balance, "ver", w.Version)

	expectedVersion := w.Version
	if err := w.Reserve(amount); err != nil {
		l.logger.Warn("Reservation rejected", "wallet_id", w.ID.String(), "bal", w.Balance, "amt", amount, "error", err)
		if shared.KindOf(err) == shared.KindUnknown {
			return nil, shared.ErrInvalidRequest{Reason: err.Error()}
		}
		return nil, err
	}

	t, err := transaction.New(userID, shared.TransactionTypeDebit, shared.TransactionStatusPending, amount, w.Currency, reference)
	if err != nil {
		return nil, shared.ErrInvalidRequest{Reason: err.Error()}
	}
	t.WalletID = &w.ID
	t.Description = description
	if err := l.transactions.WithTx(tx).Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to record reservation: %w", err)
	}

	if err := wallets.UpdateBalance(ctx, w.ID, w.Balance, expectedVersion); err != nil {
		return nil, err
	}

	l.logger.Info("Wallet funds reserved", "wallet_id", w.ID.String(), "reservation_id", t.ID.String(), "amt", amount, "new_bal", w.Balance)
	return t, nil
}

// Restore adds amount back to a wallet without recording a new transaction.
// It is the compensating step of Reserve.
func (l *WalletLedger) Restore(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, amount int64) error {
	wallets := l.wallets.WithTx(tx)

	w, err := wallets.LockForUpdate(ctx, walletID)
	if err != nil {
		return err
	}

	expectedVersion := w.Version
	if err := w.Credit(amount); err != nil {
		return shared.ErrInvalidRequest{Reason: err.Error()}
	}
	if err := wallets.UpdateBalance(ctx, w.ID, w.Balance, expectedVersion); err != nil {
		return err
	}

	l.logger.Info("Wallet balance restored", "wallet_id", w.ID.String(), "amt", amount, "new_bal", w.Balance)
	return nil
}

// Credit records a completed credit transaction and increments the balance.
// Only dispute refunds call it.
func (l *WalletLedger) Credit(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, userID string, amount int64, reference, description string) error {
	w, err := l.wallets.WithTx(tx).LockForUpdate(ctx, walletID)
	if err != nil {
		return err
	}

	t, err := transaction.New(userID, shared.TransactionTypeCredit, shared.TransactionStatusCompleted, amount, w.Currency, reference)
	if err != nil {
		return shared.ErrInvalidRequest{Reason: err.Error()}
	}
	t.WalletID = &w.ID
	t.Description = description
	if err := l.transactions.WithTx(tx).Create(ctx, t); err != nil {
		return fmt.Errorf("failed to record wallet credit: %w", err)
	}

	return l.Restore(ctx, tx, walletID, amount)
}
