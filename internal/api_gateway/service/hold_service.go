package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/stipend-escrow-ledger/internal/domain/settlement"
	"github.com/stipend-escrow-ledger/internal/escrow"
)

// HoldServiceImpl adds the settlement ledger to the escrow orchestrator
type HoldServiceImpl struct {
	*escrow.Service
	settlements settlement.Repository
}

func NewHoldService(escrowService *escrow.Service, settlements settlement.Repository) HoldService {
	return &HoldServiceImpl{
		Service:     escrowService,
		settlements: settlements,
	}
}

// Settlements returns ErrHoldNotFound for unknown holds rather than an empty list
func (s *HoldServiceImpl) Settlements(ctx context.Context, holdID uuid.UUID) ([]*settlement.Record, error) {
	if _, err := s.GetHold(ctx, holdID); err != nil {
		return nil, err
	}
	return s.settlements.ListByHold(ctx, holdID)
}
