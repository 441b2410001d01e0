package service

import (
	"context"

	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/domain/wallet"
)

// ErrWalletAccessDenied is returned when a user reads someone else's wallet
type ErrWalletAccessDenied struct {
	ActorID string
	OwnerID string
}

func (e ErrWalletAccessDenied) Error() string {
	return "actor " + e.ActorID + " may not read the wallet of " + e.OwnerID
}

func (e ErrWalletAccessDenied) Kind() shared.ErrorKind { return shared.KindForbidden }

// WalletServiceImpl implements the WalletService interface
type WalletServiceImpl struct {
	walletRepo wallet.Repository
}

func NewWalletService(walletRepo wallet.Repository) WalletService {
	return &WalletServiceImpl{walletRepo: walletRepo}
}

func (s *WalletServiceImpl) GetWallet(ctx context.Context, userID string, actor escrowdomain.Actor) (*wallet.Wallet, error) {
	if actor.ID() != userID && actor.Role() != escrowdomain.RoleAdmin {
		return nil, ErrWalletAccessDenied{ActorID: actor.ID(), OwnerID: userID}
	}
	return s.walletRepo.GetByUserID(ctx, userID)
}
