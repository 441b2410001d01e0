package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stipend-escrow-ledger/internal/api_gateway"
	"github.com/stipend-escrow-ledger/internal/api_gateway/service"
	"github.com/stipend-escrow-ledger/internal/config"
	"github.com/stipend-escrow-ledger/internal/data/mongo"
	"github.com/stipend-escrow-ledger/internal/data/postgres"
	"github.com/stipend-escrow-ledger/internal/escrow"
	"github.com/stipend-escrow-ledger/internal/fraud"
	"github.com/stipend-escrow-ledger/internal/logger"
	"github.com/stipend-escrow-ledger/internal/platform/messaging/producers"
	"github.com/stipend-escrow-ledger/internal/platform/payment"
	"github.com/stipend-escrow-ledger/internal/platform/persistence"
	"github.com/stipend-escrow-ledger/internal/platform/ratelimit"
	"github.com/stipend-escrow-ledger/internal/settlement"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("escrow_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	// Migrations run as part of opening the pool
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

	eventProducer, err := producers.NewPaymentEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize payment event producer", "error", err)
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
	coordinator := settlement.NewCoordinator(
		postgresDB,
		walletLedger,
		transactionRepo,
		paymentClient,
		escrowService,
		cfg.Escrow,
		cfg.Payment,
		log.With("component", "checkout"),
	)

	services := api_gateway.Services{
		Holds:    service.NewHoldService(escrowService, settlementRepo),
		Checkout: coordinator,
		Wallets:  service.NewWalletService(walletRepo),
		Webhooks: service.NewWebhookService(cfg.Payment.SecretKey, eventProducer, log.With("component", "webhook")),
	}
	limiter := ratelimit.NewLimiter(redisDB.Client(), log.With("component", "ratelimit"))

	server := api_gateway.NewServer(log, cfg, services, limiter, map[string]api_gateway.Pinger{
		"postgres": postgresDB,
		"mongodb":  mongoDB,
		"redis":    redisDB,
	})

	errChan := make(chan error, 1)

	go func() {
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before the stores they depend on go away
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	// Let in-flight dispute-rate checks finish
	fraudMonitor.Shutdown()

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing payment event producer", "error", err)
	}

	if err = redisDB.Close(); err != nil {
		log.Error("Error closing Redis connection", "error", err)
	}

	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serverErr != nil {
		log.Error("Escrow API shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Escrow API shutdown completed with errors")
	} else {
		log.Info("Escrow API shutdown completed successfully")
	}
}
