package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tutorbill/tutorbill/internal/cache"
	"github.com/tutorbill/tutorbill/internal/config"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	"github.com/tutorbill/tutorbill/internal/domain/enrollment"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	"github.com/tutorbill/tutorbill/internal/domain/subscription"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/settlement"
	"github.com/tutorbill/tutorbill/internal/types"
)

// Stores holds all the repository interfaces for testing
type Stores struct {
	BatchRepo        batch.Repository
	EnrollmentRepo   enrollment.Repository
	ObligationRepo   obligation.Repository
	SubscriptionRepo subscription.Repository
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx        context.Context
	stores     Stores
	settlement *settlement.StubProvider
	cache      cache.Cache
	logger     *logger.Logger
	config     *config.Configuration
	now        time.Time
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = types.LogLevelInfo

	var err error
	s.config = cfg
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.now = time.Now().UTC()
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = context.Background()
	s.ctx = types.SetTenantID(s.ctx, types.DefaultTenantID)
	s.ctx = types.SetUserID(s.ctx, types.DefaultUserID)
	s.ctx = context.WithValue(s.ctx, types.CtxRequestID, types.GenerateUUID())
}

func (s *BaseServiceTestSuite) setupStores() {
	batchStore := NewInMemoryBatchStore()
	s.stores = Stores{
		BatchRepo:        batchStore,
		EnrollmentRepo:   NewInMemoryEnrollmentStore(batchStore),
		ObligationRepo:   NewInMemoryObligationStore(),
		SubscriptionRepo: NewInMemorySubscriptionStore(),
	}
	s.settlement = settlement.NewStubProvider()
	s.cache = cache.NewInMemoryCache()
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.BatchRepo.(*InMemoryBatchStore).Clear()
	s.stores.EnrollmentRepo.(*InMemoryEnrollmentStore).Clear()
	s.stores.ObligationRepo.(*InMemoryObligationStore).Clear()
	s.stores.SubscriptionRepo.(*InMemorySubscriptionStore).Clear()
	s.cache.Flush(s.ctx)
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetSettlement returns the stub settlement provider
func (s *BaseServiceTestSuite) GetSettlement() *settlement.StubProvider {
	return s.settlement
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.now.UTC()
}

// GetUUID returns a new UUID string
func (s *BaseServiceTestSuite) GetUUID() string {
	return types.GenerateUUID()
}
