package producers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/stipend-escrow-ledger/internal/config"
)

const (
	partitionReadAttempts = 5
	partitionReadBackoff  = 2 * time.Second
)

// dialAndEnsureTopic connects to the first broker and creates topic when the
// broker does not report any partitions for it
func dialAndEnsureTopic(cfg *config.KafkaConfig, topic string, logger *slog.Logger) error {
	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return fmt.Errorf("failed to dial kafka for topic %s: %w", topic, err)
	}
	defer conn.Close()

	return ensureTopic(conn, topic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
}

func ensureTopic(conn *kafka.Conn, topic string, numPartitions, replicationFactor int, logger *slog.Logger) error {
	var (
		partitions []kafka.Partition
		err        error
	)

	for attempt := 1; attempt <= partitionReadAttempts; attempt++ {
		partitions, err = conn.ReadPartitions(topic)
		if err == nil {
			break
		}
		logger.Warn("Failed to read topic partitions, retrying", "topic", topic, "attempt", attempt, "error", err)
		time.Sleep(partitionReadBackoff)
	}

	if len(partitions) > 0 {
		logger.Info("Kafka topic already exists", "topic", topic, "partitions", len(partitions))
		return nil
	}

	topicConfig := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     max(numPartitions, 1),
		ReplicationFactor: max(replicationFactor, 1),
	}
	if err := conn.CreateTopics(topicConfig); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic, err)
	}

	logger.Info("Created Kafka topic", "topic", topic, "partitions", topicConfig.NumPartitions)
	return nil
}
