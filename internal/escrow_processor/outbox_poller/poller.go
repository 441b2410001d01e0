package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stipend-escrow-ledger/internal/domain/outbox"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// Poller executes pending side effects written by hold transitions
type Poller struct {
	outboxRepo       outbox.Repository
	executor         EffectExecutor
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	executor EffectExecutor,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		executor:         executor,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start polls until ctx is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting outbox poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox poller stopping")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error while processing pending outbox messages", "error", err)
			}
		}
	}
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	if len(messages) == 0 {
		return nil
	}

	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

	for _, msg := range messages {
		if err := p.executor.Execute(ctx, msg); err != nil {
			p.recordFailedAttempt(ctx, msg, err)
			continue
		}
		p.logger.Debug("Outbox message executed", "outbox_id", msg.ID, "kind", msg.Kind)
	}
	return nil
}

func (p *Poller) recordFailedAttempt(ctx context.Context, msg *outbox.Message, cause error) {
	logger := p.logger.With("outbox_id", msg.ID, "hold_id", msg.HoldID.String(), "kind", msg.Kind)
	logger.Error("Failed to execute outbox message", "current_attempts", msg.Attempts, "error", cause)

	if err := p.outboxRepo.IncrementAttempts(ctx, msg.ID); err != nil {
		logger.Error("Failed to increment attempts for outbox message", "error", err)
		return
	}

	if msg.Attempts+1 >= p.maxRetryAttempts {
		logger.Warn("Max retry attempts reached, marking as FAILED_TO_PUBLISH", "attempts_made", msg.Attempts+1)
		if err := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); err != nil {
			logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH", "error", err)
		}
	}
}
