package escrow

import (
	"time"

	"github.com/google/uuid"
)

// AuditLog is one append-only row per state change of a hold.
// The row written at capture has an empty FromState.
type AuditLog struct {
	ID        uuid.UUID `json:"id"`
	HoldID    uuid.UUID `json:"escrow_hold_id"`
	FromState State     `json:"from_state"`
	ToState   State     `json:"to_state"`
	ActorID   string    `json:"actor_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func NewAuditLog(holdID uuid.UUID, from, to State, actorID, reason string, at time.Time) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		HoldID:    holdID,
		FromState: from,
		ToState:   to,
		ActorID:   actorID,
		Reason:    reason,
		CreatedAt: at,
	}
}
