package service

import (
	"context"

	"github.com/tutorbill/tutorbill/internal/cache"
	"github.com/tutorbill/tutorbill/internal/config"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	"github.com/tutorbill/tutorbill/internal/domain/enrollment"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	"github.com/tutorbill/tutorbill/internal/domain/subscription"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/postgres"
	"github.com/tutorbill/tutorbill/internal/settlement"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient

	// Repositories
	BatchRepo        batch.Repository
	EnrollmentRepo   enrollment.Repository
	ObligationRepo   obligation.Repository
	SubscriptionRepo subscription.Repository

	// External collaborators
	Settlement settlement.Provider
	Cache      cache.Cache
}

// WithTx runs fn inside a database transaction when a client is wired, and
// directly otherwise. In-memory test stores have no transactions.
func (p ServiceParams) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.DB == nil {
		return fn(ctx)
	}
	return p.DB.WithTx(ctx, fn)
}
