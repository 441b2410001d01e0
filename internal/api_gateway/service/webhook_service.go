package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stipend-escrow-ledger/internal/domain/shared"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
)

// ErrInvalidSignature rejects webhooks not signed with our secret key
type ErrInvalidSignature struct{}

func (ErrInvalidSignature) Error() string { return "invalid webhook signature" }

func (ErrInvalidSignature) Kind() shared.ErrorKind { return shared.KindForbidden }

// WebhookServiceImpl implements the WebhookService interface
type WebhookServiceImpl struct {
	secret    string
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewWebhookService(secret string, publisher EventPublisher, logger *slog.Logger) WebhookService {
	return &WebhookServiceImpl{
		secret:    secret,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *WebhookServiceImpl) Accept(ctx context.Context, body []byte, signature, correlationID string) (*shared.PaymentEvent, error) {
	if !payment.VerifySignature(s.secret, body, signature) {
		s.logger.Warn("Rejected webhook with bad signature", "correlation_id", correlationID)
		return nil, ErrInvalidSignature{}
	}

	event, err := payment.ParseWebhook(body, correlationID, s.now().UTC())
	if err != nil {
		return nil, shared.ErrInvalidRequest{Reason: err.Error()}
	}

	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("queue payment event %s: %w", event.Reference, err)
	}

	s.logger.Info("Payment event queued", "correlation_id", correlationID, "event", event.Event, "reference", event.Reference)
	return event, nil
}
