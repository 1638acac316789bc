package service

import (
	"github.com/tutorbill/tutorbill/internal/testutil"
)

// newTestServiceParams wires a ServiceParams over the suite's in-memory
// stores and stub settlement provider.
func newTestServiceParams(base *testutil.BaseServiceTestSuite) ServiceParams {
	stores := base.GetStores()
	return ServiceParams{
		Logger:           base.GetLogger(),
		Config:           base.GetConfig(),
		BatchRepo:        stores.BatchRepo,
		EnrollmentRepo:   stores.EnrollmentRepo,
		ObligationRepo:   stores.ObligationRepo,
		SubscriptionRepo: stores.SubscriptionRepo,
		Settlement:       base.GetSettlement(),
		Cache:            base.GetCache(),
	}
}
