// Package escrow drives escrow holds through their lifecycle. Every state
// change goes through StateMachine so legality, authorization and the audit
// row are applied the same way for payers, admins and the scheduler.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	escrowdomain "github.com/stipend-escrow-ledger/internal/domain/escrow"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
)

// StateMachine validates and records hold transitions
type StateMachine struct {
	db     persistence.TxRunner
	holds  escrowdomain.Repository
	audit  escrowdomain.AuditRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewStateMachine(db persistence.TxRunner, holds escrowdomain.Repository, audit escrowdomain.AuditRepository, logger *slog.Logger) *StateMachine {
	return &StateMachine{
		db:     db,
		holds:  holds,
		audit:  audit,
		logger: logger,
		now:    time.Now,
	}
}

// TransitionState moves a hold to the target state in its own storage transaction
func (m *StateMachine) TransitionState(ctx context.Context, holdID uuid.UUID, to escrowdomain.State, actor escrowdomain.Actor, reason string) (*escrowdomain.Hold, error) {
	var updated *escrowdomain.Hold
	err := m.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		h, err := m.Apply(ctx, tx, holdID, to, actor, reason)
		if err != nil {
			return err
		}
		updated = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Apply performs the transition inside a transaction owned by the caller. The
// hold row is locked first so concurrent callers on the same hold serialize and
// the loser sees the winner's state. On any error nothing has been written.
func (m *StateMachine) Apply(ctx context.Context, tx pgx.Tx, holdID uuid.UUID, to escrowdomain.State, actor escrowdomain.Actor, reason string) (*escrowdomain.Hold, error) {
	holds := m.holds.WithTx(tx)
	audit := m.audit.WithTx(tx)

	h, err := holds.LockForUpdate(ctx, holdID)
	if err != nil {
		if errors.Is(err, escrowdomain.ErrHoldNotFound{}) {
			m.logger.Warn("Hold not found for transition", "hold_id", holdID.String(), "to", string(to))
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock hold %s: %w", holdID.String(), err)
	}

	if err := escrowdomain.CheckTransition(h, to, actor); err != nil {
		m.logger.Warn("Transition rejected",
			"hold_id", holdID.String(),
			"from", string(h.State),
			"to", string(to),
			"actor", actor.String(),
			"error", err,
		)
		return nil, err
	}

	from := h.State
	expectedVersion := h.Version
	h.MoveTo(to, m.now().UTC())

	if err := holds.UpdateState(ctx, h, expectedVersion); err != nil {
		return nil, err
	}

	entry := escrowdomain.NewAuditLog(h.ID, from, to, actor.ID(), reason, h.UpdatedAt)
	if err := audit.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append audit row for hold %s: %w", holdID.String(), err)
	}

	m.logger.Info("Hold transitioned",
		"hold_id", h.ID.String(),
		"from", string(from),
		"to", string(to),
		"actor", actor.ID(),
		"version", h.Version,
	)
	return h, nil
}
