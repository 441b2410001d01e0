package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/escrow_processor/service"
	"github.com/stipend-escrow-ledger/internal/platform/messaging/producers"
)

// PaymentEventHandler handles gateway payment events read from Kafka
type PaymentEventHandler struct {
	processingService service.ProcessingService
	producer          producers.DeadLetterPublisher
	logger            *slog.Logger
}

func NewPaymentEventHandler(
	logger *slog.Logger,
	processingService service.ProcessingService,
	producer producers.DeadLetterPublisher,
) *PaymentEventHandler {
	return &PaymentEventHandler{
		processingService: processingService,
		producer:          producer,
		logger:            logger,
	}
}

// HandleMessage returns nil to commit the offset. Messages that can never
// succeed are parked in the DLQ; anything else is left for redelivery.
func (h *PaymentEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event shared.PaymentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("Failed to unmarshal payment event", "message_key", string(key), "error", err)
		return h.deadLetter(ctx, key, value, fmt.Errorf("unmarshal payment event: %w", err))
	}

	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}

	err := h.processingService.ProcessPaymentEvent(ctx, &event)
	if err == nil {
		return nil
	}

	if shared.IsKind(err, shared.KindInvalidRequest) {
		logger.Warn("Payment event rejected", "reference", event.Reference, "error", err)
		return h.deadLetter(ctx, key, value, err)
	}

	logger.Error("Failed to process payment event", "reference", event.Reference, "error", err)
	return fmt.Errorf("processing payment event %s failed: %w", event.Reference, err)
}

func (h *PaymentEventHandler) deadLetter(ctx context.Context, key, value []byte, cause error) error {
	if h.producer == nil {
		return cause
	}

	if err := h.producer.PublishToDLQ(ctx, string(key), value, cause.Error()); err != nil {
		h.logger.Error("Failed to publish message to DLQ",
			"message_key", string(key),
			"dlq_error", err,
			"original_error", cause,
		)
		return cause
	}
	return nil
}
