package dispute

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Status of a dispute raised against a hold
type Status string

const (
	StatusOpen            Status = "open"
	StatusResolvedRelease Status = "resolved_release"
	StatusResolvedRefund  Status = "resolved_refund"
)

// Outcome is the admin's decision on a dispute
type Outcome string

const (
	OutcomeRelease Outcome = "release"
	OutcomeRefund  Outcome = "refund"
)

func (o Outcome) Valid() bool {
	return o == OutcomeRelease || o == OutcomeRefund
}

// Status returns the dispute status the outcome resolves to
func (o Outcome) Status() Status {
	if o == OutcomeRefund {
		return StatusResolvedRefund
	}
	return StatusResolvedRelease
}

var ErrEmptyDescription = errors.New("dispute description cannot be empty")

// Dispute is a payer's complaint against a held payment
type Dispute struct {
	ID             uuid.UUID  `json:"id"`
	HoldID         uuid.UUID  `json:"escrow_hold_id"`
	RaisedBy       string     `json:"raised_by"`
	Description    string     `json:"description"`
	Status         Status     `json:"status"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	ResolvedBy     string     `json:"resolved_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

func New(holdID uuid.UUID, raisedBy, description string, now time.Time) (*Dispute, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}
	return &Dispute{
		ID:          uuid.New(),
		HoldID:      holdID,
		RaisedBy:    raisedBy,
		Description: description,
		Status:      StatusOpen,
		CreatedAt:   now,
	}, nil
}

// Resolve closes the dispute with the given outcome
func (d *Dispute) Resolve(outcome Outcome, resolvedBy, note string, at time.Time) {
	d.Status = outcome.Status()
	d.ResolvedBy = resolvedBy
	d.ResolutionNote = note
	resolvedAt := at
	d.ResolvedAt = &resolvedAt
}

// Repository defines dispute persistence operations
type Repository interface {
	Create(ctx context.Context, d *Dispute) error
	GetOpenByHold(ctx context.Context, holdID uuid.UUID) (*Dispute, error)
	Resolve(ctx context.Context, d *Dispute) error

	// CountByUser counts every dispute the user ever raised
	CountByUser(ctx context.Context, userID string) (int64, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrOpenDisputeNotFound indicates a resolution without an open dispute
type ErrOpenDisputeNotFound struct {
	HoldID uuid.UUID
}

func (e ErrOpenDisputeNotFound) Error() string {
	return "no open dispute for hold: " + e.HoldID.String()
}

func (e ErrOpenDisputeNotFound) Kind() shared.ErrorKind { return shared.KindInvalidTransition }
