package service

import (
	"context"
	"log/slog"

	"github.com/panjf2000/ants/v2"

	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// WorkerPoolProcessingService bounds concurrent captures with an ants pool
type WorkerPoolProcessingService struct {
	baseService ProcessingService
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolProcessingService(
	baseService ProcessingService,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolProcessingService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolProcessingService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
	}, nil
}

// ProcessPaymentEvent runs the event on a pooled worker and waits for it.
// The consumer only commits after this returns nil.
func (s *WorkerPoolProcessingService) ProcessPaymentEvent(ctx context.Context, event *shared.PaymentEvent) error {
	eventCopy := *event
	result := make(chan error, 1)

	err := s.pool.Submit(func() {
		result <- s.baseService.ProcessPaymentEvent(ctx, &eventCopy)
	})
	if err != nil {
		s.logger.Error("Failed to submit payment event to worker pool", "reference", event.Reference, "error", err)
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown releases the pool. Tasks already running finish on their own.
func (s *WorkerPoolProcessingService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

func (s *WorkerPoolProcessingService) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolProcessingService) Capacity() int {
	return s.pool.Cap()
}
