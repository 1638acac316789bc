package main

import (
	"log"
	"time"

	"github.com/tutorbill/tutorbill/internal/api"
	"github.com/tutorbill/tutorbill/internal/api/cron"
	v1 "github.com/tutorbill/tutorbill/internal/api/v1"
	"github.com/tutorbill/tutorbill/internal/cache"
	"github.com/tutorbill/tutorbill/internal/config"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/postgres"
	"github.com/tutorbill/tutorbill/internal/repository"
	"github.com/tutorbill/tutorbill/internal/service"
	"github.com/tutorbill/tutorbill/internal/settlement"
)

func init() {
	// Billing periods and due dates are computed in UTC everywhere.
	time.Local = time.UTC
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	db, err := postgres.NewDB(cfg)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	client := postgres.NewClient(db, logger)
	defer client.Close()

	params := service.ServiceParams{
		Logger:           logger,
		Config:           cfg,
		DB:               client,
		BatchRepo:        repository.NewBatchRepository(client, logger),
		EnrollmentRepo:   repository.NewEnrollmentRepository(client, logger),
		ObligationRepo:   repository.NewObligationRepository(client, logger),
		SubscriptionRepo: repository.NewSubscriptionRepository(client, logger),
		Settlement:       settlement.NewMidtransProvider(cfg.Settlement, logger),
		Cache:            cache.NewInMemoryCache(),
	}

	batchService := service.NewBatchService(params)
	ledgerService := service.NewLedgerService(params)
	duesService := service.NewDueAggregatorService(params)
	paymentService := service.NewPaymentIntentService(params)
	subscriptionService := service.NewSubscriptionService(params)

	router := api.NewRouter(cfg, api.Handlers{
		Batch:        v1.NewBatchHandler(batchService, logger),
		Obligation:   v1.NewObligationHandler(ledgerService, duesService, logger),
		Payment:      v1.NewPaymentHandler(paymentService, logger),
		Subscription: v1.NewSubscriptionHandler(subscriptionService, logger),

		CronLedger:       cron.NewLedgerHandler(ledgerService, logger),
		CronSubscription: cron.NewSubscriptionHandler(subscriptionService, logger),
	})

	logger.Infow("starting server", "address", cfg.Server.Address)
	if err := router.Run(cfg.Server.Address); err != nil {
		logger.Fatalw("Server failed", "error", err)
	}
}
