package repository

import (
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	"github.com/tutorbill/tutorbill/internal/domain/enrollment"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	"github.com/tutorbill/tutorbill/internal/domain/subscription"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/postgres"
	postgresRepo "github.com/tutorbill/tutorbill/internal/repository/postgres"
)

func NewBatchRepository(db postgres.IClient, logger *logger.Logger) batch.Repository {
	return postgresRepo.NewBatchRepository(db, logger)
}

func NewEnrollmentRepository(db postgres.IClient, logger *logger.Logger) enrollment.Repository {
	return postgresRepo.NewEnrollmentRepository(db, logger)
}

func NewObligationRepository(db postgres.IClient, logger *logger.Logger) obligation.Repository {
	return postgresRepo.NewObligationRepository(db, logger)
}

func NewSubscriptionRepository(db postgres.IClient, logger *logger.Logger) subscription.Repository {
	return postgresRepo.NewSubscriptionRepository(db, logger)
}
