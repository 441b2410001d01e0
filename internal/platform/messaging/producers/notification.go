package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stipend-escrow-ledger/internal/config"
)

// Notification is the message the external mailer consumes
type Notification struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Data      map[string]string `json:"data,omitempty"`
	SentAt    time.Time         `json:"sent_at"`
}

// NotificationProducer is the notification sink. Delivery is fire-and-forget:
// the writer is async and failures surface only in the completion log.
type NotificationProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
	now    func() time.Time
}

func NewNotificationProducer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*NotificationProducer, error) {
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("kafka notification topic is not configured")
	}

	if err := dialAndEnsureTopic(cfg, cfg.NotificationTopic, logger); err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.NotificationTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to deliver notifications", "topic", cfg.NotificationTopic, "count", len(messages), "error", err)
			}
		},
	}

	return &NotificationProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.NotificationTopic,
		now:    time.Now,
	}, nil
}

// Send queues one notification for recipient
func (p *NotificationProducer) Send(ctx context.Context, template, recipient string, data map[string]string) error {
	if template == "" || recipient == "" {
		return fmt.Errorf("notification needs a template and a recipient")
	}

	payload, err := json.Marshal(Notification{
		Template:  template,
		Recipient: recipient,
		Data:      data,
		SentAt:    p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:     []byte(recipient),
		Value:   payload,
		Headers: []kafka.Header{{Key: "template", Value: []byte(template)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("Failed to queue notification", "template", template, "recipient", recipient, "error", err)
		return fmt.Errorf("failed to queue notification %s: %w", template, err)
	}
	return nil
}

func (p *NotificationProducer) Close() error {
	p.logger.Info("Closing notification producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
