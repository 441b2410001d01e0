// Package config provides configuration structures and validation for the escrow
// ledger binaries. It covers the HTTP server, storage backends, messaging, the
// payment gateway and the escrow policy knobs (auto-release window, refund policy,
// fraud threshold).
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a subsystem and is validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Payment     PaymentConfig
	Escrow      EscrowConfig
	Scheduler   SchedulerConfig
	Fraud       FraudConfig
	RateLimit   RateLimitConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers            string
	PaymentEventsTopic string // Gateway charge events, produced by the API and consumed by the worker
	NotificationTopic  string // Outbound notifications picked up by the mailer
	NumPartitions      int
	ReplicationFactor  int
	ConsumerGroup      string
	MinBytes           int
	MaxBytes           int
	MaxWait            time.Duration
	StartOffset        int64
	DLQTopic           string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration used by the rate limiter and scheduler lock
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// OutboxConfig contains side-effect outbox configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// PaymentConfig contains payment gateway settings
type PaymentConfig struct {
	BaseURL         string
	SecretKey       string
	ChargeTimeout   time.Duration // Bound on a single charge/transfer/verify call
	TransferSource  string        // Gateway balance the merchant transfers are drawn from
	DefaultCurrency string
}

// EscrowConfig contains escrow policy settings
type EscrowConfig struct {
	AutoReleaseWindow  time.Duration
	FirstReminderAfter time.Duration
	FinalReminderAfter time.Duration
	RefundToWallet     bool // Credit wallet-funded holds back to the wallet on refund
	MaxConflictRetries int
	ConflictBackoff    time.Duration
}

// SchedulerConfig contains auto-release scheduler settings
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// FraudConfig contains dispute-rate monitor settings
type FraudConfig struct {
	DisputeRateThreshold float64
	CheckTimeout         time.Duration
	PoolSize             int
}

// RateLimitConfig contains request rate limiting settings
type RateLimitConfig struct {
	DisputeLimit  int
	CheckoutLimit int
	Window        time.Duration
}

// validate performs validation of all configuration values, collecting every
// violation so the operator can fix them in one pass
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.PaymentEventsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_PAYMENT_EVENTS_TOPIC is required")
	}
	if c.Kafka.NotificationTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_NOTIFICATION_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		validationErrors = append(validationErrors, "REDIS_ADDR is required")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Payment config
	if c.Payment.BaseURL == "" {
		validationErrors = append(validationErrors, "PAYMENT_BASE_URL is required")
	}
	if c.Payment.ChargeTimeout <= 0 {
		validationErrors = append(validationErrors, "PAYMENT_CHARGE_TIMEOUT must be greater than 0")
	}
	if len(c.Payment.DefaultCurrency) != 3 {
		validationErrors = append(validationErrors, "PAYMENT_DEFAULT_CURRENCY must be a 3-letter code")
	}

	// Validate Escrow config
	if c.Escrow.AutoReleaseWindow <= 0 {
		validationErrors = append(validationErrors, "ESCROW_AUTO_RELEASE_WINDOW must be greater than 0")
	}
	if c.Escrow.FirstReminderAfter <= 0 || c.Escrow.FirstReminderAfter >= c.Escrow.FinalReminderAfter {
		validationErrors = append(validationErrors, "ESCROW_FIRST_REMINDER_AFTER must be positive and before ESCROW_FINAL_REMINDER_AFTER")
	}
	if c.Escrow.FinalReminderAfter >= c.Escrow.AutoReleaseWindow {
		validationErrors = append(validationErrors, "ESCROW_FINAL_REMINDER_AFTER must be before ESCROW_AUTO_RELEASE_WINDOW")
	}
	if c.Escrow.MaxConflictRetries < 0 {
		validationErrors = append(validationErrors, "ESCROW_MAX_CONFLICT_RETRIES must not be negative")
	}

	// Validate Scheduler config
	if c.Scheduler.Interval <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_INTERVAL must be greater than 0")
	}
	if c.Scheduler.BatchSize <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_BATCH_SIZE must be greater than 0")
	}
	if c.Scheduler.LockTTL <= 0 {
		validationErrors = append(validationErrors, "SCHEDULER_LOCK_TTL must be greater than 0")
	}

	// Validate Fraud config
	if c.Fraud.DisputeRateThreshold <= 0 || c.Fraud.DisputeRateThreshold >= 1 {
		validationErrors = append(validationErrors, "FRAUD_DISPUTE_RATE_THRESHOLD must be between 0 and 1")
	}
	if c.Fraud.PoolSize <= 0 {
		validationErrors = append(validationErrors, "FRAUD_POOL_SIZE must be greater than 0")
	}

	// Validate RateLimit config
	if c.RateLimit.Window <= 0 {
		validationErrors = append(validationErrors, "RATE_LIMIT_WINDOW must be greater than 0")
	}
	if c.RateLimit.DisputeLimit <= 0 || c.RateLimit.CheckoutLimit <= 0 {
		validationErrors = append(validationErrors, "RATE_LIMIT_DISPUTE_LIMIT and RATE_LIMIT_CHECKOUT_LIMIT must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
