package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stipend-escrow-ledger/internal/data/mongo"
	"github.com/stipend-escrow-ledger/internal/data/postgres"
	"github.com/stipend-escrow-ledger/internal/escrow"
	"github.com/stipend-escrow-ledger/internal/escrow_processor/consumer"
	"github.com/stipend-escrow-ledger/internal/escrow_processor/outbox_poller"
	"github.com/stipend-escrow-ledger/internal/escrow_processor/service"
	"github.com/stipend-escrow-ledger/internal/fraud"
	"github.com/stipend-escrow-ledger/internal/logger"
	"github.com/stipend-escrow-ledger/internal/platform/lock"
	"github.com/stipend-escrow-ledger/internal/platform/messaging/consumers"
	"github.com/stipend-escrow-ledger/internal/platform/messaging/producers"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
	"github.com/stipend-escrow-ledger/internal/scheduler"
	"github.com/stipend-escrow-ledger/internal/settlement"
)

// schedulerLockName is shared by every worker replica
const schedulerLockName = "escrow-auto-release"

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("escrow_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Escrow Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	redisDB, err := persistence.NewRedisDB(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	// Repositories
	holdRepo := postgres.NewHoldRepository(log, postgresDB)
	auditRepo := postgres.NewAuditRepository(log, postgresDB)
	walletRepo := postgres.NewWalletRepository(log, postgresDB)
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	disputeRepo := postgres.NewDisputeRepository(log, postgresDB)
	riskFlagRepo := postgres.NewRiskFlagRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	settlementRepo := mongo.NewSettlementRepository(log, mongoDB.Database())

	if err := settlementRepo.EnsureIndexes(appCtx); err != nil {
		log.Error("Failed to create settlement indexes", "error", err)
		os.Exit(1)
	}

	// Kafka
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka)

	// dlqProducer is nil when no DLQ topic is configured; its methods are nil-safe
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	notificationProducer, err := producers.NewNotificationProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize notification producer", "error", err)
		os.Exit(1)
	}

	fraudMonitor, err := fraud.NewMonitor(transactionRepo, disputeRepo, riskFlagRepo, cfg.Fraud, log.With("component", "fraud"))
	if err != nil {
		log.Error("Failed to initialize fraud monitor", "error", err)
		os.Exit(1)
	}

	walletLedger := settlement.NewWalletLedger(walletRepo, transactionRepo, log.With("component", "wallet_ledger"))
	escrowService := escrow.NewService(
		postgresDB,
		escrow.Repositories{
			Holds:        holdRepo,
			Audit:        auditRepo,
			Transactions: transactionRepo,
			Disputes:     disputeRepo,
			Outbox:       outboxRepo,
		},
		walletLedger,
		fraudMonitor,
		cfg.Escrow,
		log.With("component", "escrow"),
	)
	paymentClient := payment.NewClient(&cfg.Payment, log.With("component", "payment"))

	// Payment events: verify with the gateway, then capture on a pooled worker
	processingService, err := service.NewWorkerPoolProcessingService(
		service.NewProcessingService(paymentClient, escrowService, log.With("component", "capture")),
		service.WorkerPoolConfig{Size: cfg.WorkerPool.Size},
		log,
	)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}
	paymentEventHandler := consumer.NewPaymentEventHandler(log, processingService, dlqProducer)

	// Outbox: payouts, refunds and notifications
	effectExecutor := outbox_poller.NewEffectExecutor(
		outboxRepo,
		settlementRepo,
		paymentClient,
		notificationProducer,
		log.With("component", "effects"),
	)
	poller := outbox_poller.NewPoller(&cfg.Outbox, outboxRepo, effectExecutor, log.With("component", "outbox"))

	// Auto-release and reminders, one replica at a time
	autoRelease := scheduler.NewScheduler(
		holdRepo,
		escrowService,
		lock.NewLease(redisDB.Client(), schedulerLockName, cfg.Scheduler.LockTTL),
		cfg.Escrow,
		cfg.Scheduler,
		log.With("component", "scheduler"),
	)

	var wg sync.WaitGroup

	if err := kafkaConsumer.Subscribe(appCtx, paymentEventHandler.HandleMessage); err != nil {
		log.Error("Failed to subscribe to payment events", "error", err)
		os.Exit(1)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-kafkaConsumer.Done()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		autoRelease.Run(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	<-quit
	log.Info("Shutdown signal received")

	cancelAppCtx()

	log.Info("Shutting down worker pool", "running_workers", processingService.Running())
	processingService.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	fraudMonitor.Shutdown()

	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	if err = dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}

	if err = notificationProducer.Close(); err != nil {
		log.Error("Error closing notification producer", "error", err)
	}

	if err = redisDB.Close(); err != nil {
		log.Error("Error closing Redis connection", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if err != nil {
		log.Error("Escrow Worker shutdown completed with errors")
	} else {
		log.Info("Escrow Worker shutdown completed successfully")
	}
}
