package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Repository defines wallet persistence operations
type Repository interface {
	Create(ctx context.Context, wallet *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*Wallet, error)

	// LockByUserID acquires a pessimistic lock on the user's wallet row
	LockByUserID(ctx context.Context, userID string) (*Wallet, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Wallet, error)

	// UpdateBalance uses optimistic locking on version
	UpdateBalance(ctx context.Context, id uuid.UUID, balance int64, version int) error
	WithTx(tx pgx.Tx) Repository
}

// ErrWalletNotFound indicates a missing wallet, looked up by id or by owner
type ErrWalletNotFound struct {
	WalletID uuid.UUID
	UserID   string
}

func (e ErrWalletNotFound) Error() string {
	if e.UserID != "" {
		return "wallet not found for user: " + e.UserID
	}
	return "wallet not found: " + e.WalletID.String()
}

func (e ErrWalletNotFound) Kind() shared.ErrorKind { return shared.KindWalletNotFound }

// ErrInsufficientFunds indicates a reservation larger than the balance
type ErrInsufficientFunds struct {
	WalletID  uuid.UUID
	Balance   int64
	Requested int64
}

func (e ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("insufficient funds in wallet %s: balance %d, requested %d", e.WalletID, e.Balance, e.Requested)
}

func (e ErrInsufficientFunds) Kind() shared.ErrorKind { return shared.KindInsufficientFunds }
