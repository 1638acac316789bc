package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/testutil"
	"github.com/tutorbill/tutorbill/internal/types"
)

type DueAggregatorServiceSuite struct {
	testutil.BaseServiceTestSuite
	dues   DueAggregatorService
	ledger LedgerService
}

func TestDueAggregatorService(t *testing.T) {
	suite.Run(t, new(DueAggregatorServiceSuite))
}

func (s *DueAggregatorServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.dues = NewDueAggregatorService(params)
	s.ledger = NewLedgerService(params)
}

// seedBatchWithArrears creates a batch plus one unpaid obligation per month,
// starting the given number of months back.
func (s *DueAggregatorServiceSuite) seedBatchWithArrears(fee int64, monthsBack int) *batch.Batch {
	b := &batch.Batch{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BATCH),
		TeacherID:    "teacher-1",
		Name:         "Physics Morning",
		MonthlyFee:   decimal.NewFromInt(fee),
		StudentLimit: 25,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().BatchRepo.Create(s.GetContext(), b))

	period := types.BillingPeriodStart(s.GetNow().AddDate(0, -monthsBack+1, 0))
	for i := 0; i < monthsBack; i++ {
		_, err := s.ledger.CreateObligation(s.GetContext(), dto.CreateObligationRequest{
			StudentID: "student-1",
			BatchID:   b.ID,
			Period:    period,
		})
		s.NoError(err)
		period = types.NextBillingPeriod(period)
	}
	return b
}

func (s *DueAggregatorServiceSuite) TestGetDueSummary() {
	b := s.seedBatchWithArrears(500, 3)

	summary, err := s.dues.GetDueSummary(s.GetContext(), "student-1", b.ID)
	s.NoError(err)
	s.Equal(3, summary.MonthsDue)
	s.True(summary.TotalDue.Equal(decimal.NewFromInt(1500)))
	s.True(summary.MonthlyFee.Equal(decimal.NewFromInt(500)))
	s.Len(summary.DuePayments, 3)

	// Oldest first.
	for i := 1; i < len(summary.DuePayments); i++ {
		s.True(summary.DuePayments[i-1].DueDate.Before(summary.DuePayments[i].DueDate))
	}
}

func (s *DueAggregatorServiceSuite) TestGetDueSummaryIncludesOverdue() {
	b := s.seedBatchWithArrears(500, 2)

	_, err := s.ledger.RecomputeOverdue(s.GetContext(), s.GetNow())
	s.NoError(err)

	summary, err := s.dues.GetDueSummary(s.GetContext(), "student-1", b.ID)
	s.NoError(err)
	s.Equal(2, summary.MonthsDue)
	s.True(summary.TotalDue.Equal(decimal.NewFromInt(1000)))
}

func (s *DueAggregatorServiceSuite) TestGetDueSummaryExcludesPaid() {
	b := s.seedBatchWithArrears(500, 3)

	summary, err := s.dues.GetDueSummary(s.GetContext(), "student-1", b.ID)
	s.NoError(err)
	oldest := summary.DuePayments[0]

	_, err = s.ledger.MarkCash(s.GetContext(), oldest.ID, "teacher-1")
	s.NoError(err)

	summary, err = s.dues.GetDueSummary(s.GetContext(), "student-1", b.ID)
	s.NoError(err)
	s.Equal(2, summary.MonthsDue)
	s.True(summary.TotalDue.Equal(decimal.NewFromInt(1000)))
}

func (s *DueAggregatorServiceSuite) TestGetDueSummaryEmpty() {
	b := s.seedBatchWithArrears(500, 1)

	summary, err := s.dues.GetDueSummary(s.GetContext(), "student-other", b.ID)
	s.NoError(err)
	s.Equal(0, summary.MonthsDue)
	s.True(summary.TotalDue.IsZero())
	s.Empty(summary.DuePayments)
}

func (s *DueAggregatorServiceSuite) TestResolveBulkSetExactSum() {
	b := s.seedBatchWithArrears(500, 3)

	set, err := s.dues.ResolveBulkSet(s.GetContext(), "student-1", b.ID, decimal.NewFromInt(1500))
	s.NoError(err)
	s.Len(set, 3)

	set, err = s.dues.ResolveBulkSet(s.GetContext(), "student-1", b.ID, decimal.NewFromInt(1000))
	s.NoError(err)
	s.Len(set, 2)
	s.True(set[0].DueDate.Before(set[1].DueDate))
}

func (s *DueAggregatorServiceSuite) TestResolveBulkSetRejectsPartialMonth() {
	b := s.seedBatchWithArrears(500, 3)

	// 1200 covers two months plus a fraction of the third.
	_, err := s.dues.ResolveBulkSet(s.GetContext(), "student-1", b.ID, decimal.NewFromInt(1200))
	s.Error(err)
	s.True(ierr.IsPartialMonthNotSupported(err))

	// More than everything owed.
	_, err = s.dues.ResolveBulkSet(s.GetContext(), "student-1", b.ID, decimal.NewFromInt(2000))
	s.Error(err)
	s.True(ierr.IsPartialMonthNotSupported(err))
}

func (s *DueAggregatorServiceSuite) TestResolveOldest() {
	b := s.seedBatchWithArrears(500, 3)

	set, err := s.dues.ResolveOldest(s.GetContext(), "student-1", b.ID, 2)
	s.NoError(err)
	s.Len(set, 2)
	s.True(set[0].Period.Before(set[1].Period))

	_, err = s.dues.ResolveOldest(s.GetContext(), "student-1", b.ID, 4)
	s.Error(err)
	s.True(ierr.IsValidation(err))

	_, err = s.dues.ResolveOldest(s.GetContext(), "student-1", b.ID, 0)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

// Uneven amounts happen when the batch fee changes between months; the
// snapshots differ and the prefix sum must respect them.
func (s *DueAggregatorServiceSuite) TestResolveBulkSetWithChangedFee() {
	b := s.seedBatchWithArrears(500, 2)

	b.MonthlyFee = decimal.NewFromInt(700)
	s.NoError(s.GetStores().BatchRepo.Update(s.GetContext(), b))

	nextPeriod := types.BillingPeriodStart(s.GetNow().AddDate(0, 1, 0))
	_, err := s.ledger.CreateObligation(s.GetContext(), dto.CreateObligationRequest{
		StudentID: "student-1",
		BatchID:   b.ID,
		Period:    nextPeriod,
	})
	s.NoError(err)

	set, err := s.dues.ResolveBulkSet(s.GetContext(), "student-1", b.ID, decimal.NewFromInt(1700))
	s.NoError(err)
	s.Len(set, 3)

	_, err = s.dues.ResolveBulkSet(s.GetContext(), "student-1", b.ID, decimal.NewFromInt(1500))
	s.Error(err)
	s.True(ierr.IsPartialMonthNotSupported(err))
}
