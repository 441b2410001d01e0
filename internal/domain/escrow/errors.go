package escrow

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// ErrHoldNotFound indicates a missing hold
type ErrHoldNotFound struct {
	HoldID uuid.UUID
}

func (e ErrHoldNotFound) Error() string {
	return "escrow hold not found: " + e.HoldID.String()
}

func (e ErrHoldNotFound) Kind() shared.ErrorKind { return shared.KindHoldNotFound }

// Is matches any ErrHoldNotFound when the target has no HoldID
func (e ErrHoldNotFound) Is(target error) bool {
	t, ok := target.(ErrHoldNotFound)
	if !ok {
		return false
	}
	return t.HoldID == uuid.Nil || t.HoldID == e.HoldID
}

// ErrInvalidTransition indicates an edge missing from the transition table.
// From is the hold's unchanged current state.
type ErrInvalidTransition struct {
	HoldID uuid.UUID
	From   State
	To     State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid transition for hold %s: %s -> %s", e.HoldID, e.From, e.To)
}

func (e ErrInvalidTransition) Kind() shared.ErrorKind { return shared.KindInvalidTransition }

// ErrForbidden indicates a legal edge requested by an actor not allowed to take it
type ErrForbidden struct {
	HoldID  uuid.UUID
	ActorID string
	From    State
	To      State
}

func (e ErrForbidden) Error() string {
	return fmt.Sprintf("actor %q may not move hold %s from %s to %s", e.ActorID, e.HoldID, e.From, e.To)
}

func (e ErrForbidden) Kind() shared.ErrorKind { return shared.KindForbidden }
