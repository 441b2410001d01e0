package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stipend-escrow-ledger/internal/domain/shared"
)

// PaymentEventProducer hands verified gateway webhooks to the escrow worker.
// Writes are synchronous so the webhook is only acknowledged once Kafka has it.
type PaymentEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

func NewPaymentEventProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*PaymentEventProducer, error) {
	if cfg.PaymentEventsTopic == "" {
		return nil, fmt.Errorf("kafka payment events topic is not configured")
	}

	if err := dialAndEnsureTopic(cfg, cfg.PaymentEventsTopic, logger); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.PaymentEventsTopic,
		Balancer:     &kafka.Hash{}, // Same reference lands on the same partition
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &PaymentEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.PaymentEventsTopic,
	}, nil
}

// Publish writes the event keyed by its charge reference
func (p *PaymentEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: payload}); err != nil {
		p.logger.Error("Failed to publish payment event", "topic", p.topic, "key", key, "error", err)
		return fmt.Errorf("failed to publish payment event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published payment event", "topic", p.topic, "key", key)
	return nil
}

// PublishEvent is Publish for a decoded gateway event
func (p *PaymentEventProducer) PublishEvent(ctx context.Context, event *shared.PaymentEvent) error {
	return p.Publish(ctx, event.Reference, event)
}

func (p *PaymentEventProducer) Close() error {
	p.logger.Info("Closing payment event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
