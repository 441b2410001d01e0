package consumers

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stipend-escrow-ledger/internal/config"
)

// MessageHandler processes one message. A nil return commits the offset.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// MessageReader wraps the kafka.Reader methods the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads the payment events topic in a consumer group
type KafkaConsumer struct {
	reader     MessageReader
	topic      string
	groupID    string
	fetchRetry time.Duration
	logger     *slog.Logger
	done       chan struct{}
}

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	startOffset := cfg.StartOffset
	if startOffset == 0 {
		startOffset = kafka.FirstOffset
	}

	return &KafkaConsumer{
		logger:     logger,
		topic:      cfg.PaymentEventsTopic,
		groupID:    cfg.ConsumerGroup,
		fetchRetry: time.Second,
		done:       make(chan struct{}),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       cfg.PaymentEventsTopic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: startOffset,
		}),
	}
}

// Subscribe starts the fetch loop in the background. Messages whose handler
// fails stay uncommitted and are redelivered after a rebalance or restart.
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	c.logger.Info("Subscribed to Kafka topic", "topic", c.topic, "group_id", c.groupID)

	go func() {
		defer close(c.done)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.Info("Context canceled, stopping consumer", "topic", c.topic)
					return
				}
				c.logger.Error("Failed to fetch message from Kafka", "topic", c.topic, "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(c.fetchRetry):
				}
				continue
			}

			c.logger.Debug("Received message from Kafka",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
			)

			if err := handler(ctx, msg.Key, msg.Value); err != nil {
				c.logger.Error("Failed to process message, will not commit offset",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"key", string(msg.Key),
					"error", err,
				)
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				c.logger.Error("Failed to commit message after successful processing",
					"partition", msg.Partition,
					"offset", msg.Offset,
					"key", string(msg.Key),
					"error", err,
				)
			}
		}
	}()

	return nil
}

// Done is closed once the fetch loop has exited
func (c *KafkaConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
