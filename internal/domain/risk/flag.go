package risk

import (
	"context"
	"time"
)

// UserRiskFlag marks a user whose dispute rate crossed the threshold
type UserRiskFlag struct {
	UserID           string    `json:"user_id"`
	DisputeRate      float64   `json:"dispute_rate"`
	DisputeCount     int64     `json:"dispute_count"`
	TransactionCount int64     `json:"transaction_count"`
	FlaggedAt        time.Time `json:"flagged_at"`
}

// Repository persists risk flags. Upsert refreshes the numbers of an
// existing flag and keeps the original flagged_at.
type Repository interface {
	Upsert(ctx context.Context, flag *UserRiskFlag) error
	GetByUser(ctx context.Context, userID string) (*UserRiskFlag, error)
}

// ErrFlagNotFound indicates the user was never flagged
type ErrFlagNotFound struct {
	UserID string
}

func (e ErrFlagNotFound) Error() string {
	return "risk flag not found for user: " + e.UserID
}
