package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// MessagePublisher publishes JSON values to a primary topic
type MessagePublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
	Close() error
}

// DeadLetterPublisher parks messages the worker could not process
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// NotificationSender delivers templated notifications to users and merchants
type NotificationSender interface {
	Send(ctx context.Context, template, recipient string, data map[string]string) error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	_ MessagePublisher    = (*PaymentEventProducer)(nil)
	_ DeadLetterPublisher = (*DLQProducer)(nil)
	_ NotificationSender  = (*NotificationProducer)(nil)
)
