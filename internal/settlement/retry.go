package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// retryOnConflict reruns fn while it fails with a storage conflict, waiting
// backoff*attempt between tries. Other errors return at once.
func retryOnConflict(ctx context.Context, logger *slog.Logger, op string, maxRetries int, backoff time.Duration, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !shared.IsKind(err, shared.KindStorageConflict) || attempt >= maxRetries {
			return err
		}

		wait := backoff * time.Duration(attempt+1)
		logger.Warn("Storage conflict, retrying", "op", op, "attempt", attempt+1, "max_retries", maxRetries, "backoff", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}
