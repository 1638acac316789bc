package service

import (
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/testutil"
	"github.com/tutorbill/tutorbill/internal/types"
)

type BatchServiceSuite struct {
	testutil.BaseServiceTestSuite
	batches BatchService
	ledger  LedgerService
}

func TestBatchService(t *testing.T) {
	suite.Run(t, new(BatchServiceSuite))
}

func (s *BatchServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.batches = NewBatchService(params)
	s.ledger = NewLedgerService(params)
}

func (s *BatchServiceSuite) createBatch(teacherID string, fee int64, limit int) *dto.BatchResponse {
	resp, err := s.batches.CreateBatch(s.GetContext(), dto.CreateBatchRequest{
		TeacherID:    teacherID,
		Name:         "Biology Afternoon",
		MonthlyFee:   decimal.NewFromInt(fee),
		StudentLimit: limit,
	})
	s.NoError(err)
	return resp
}

// obligationsFor lists the student's ledger rows for the batch, oldest first.
func (s *BatchServiceSuite) obligationsFor(studentID, batchID string) []*obligation.Obligation {
	filter := types.NewNoLimitObligationFilter()
	filter.StudentID = &studentID
	filter.BatchID = &batchID
	rows, err := s.GetStores().ObligationRepo.List(s.GetContext(), filter)
	s.NoError(err)
	return rows
}

func (s *BatchServiceSuite) TestCreateAndGetBatch() {
	created := s.createBatch("teacher-1", 5000, 30)
	s.Equal(types.StatusPublished, created.Status)

	got, err := s.batches.GetBatch(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(created.ID, got.ID)
	s.True(got.MonthlyFee.Equal(decimal.NewFromInt(5000)))

	// Second read is served from cache.
	again, err := s.batches.GetBatch(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(got.ID, again.ID)
}

func (s *BatchServiceSuite) TestCreateBatchRejectsInvalidInput() {
	_, err := s.batches.CreateBatch(s.GetContext(), dto.CreateBatchRequest{
		TeacherID:    "teacher-1",
		Name:         "No Seats",
		MonthlyFee:   decimal.NewFromInt(500),
		StudentLimit: 0,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *BatchServiceSuite) TestUpdateBatchInvalidatesCache() {
	created := s.createBatch("teacher-1", 5000, 30)
	_, err := s.batches.GetBatch(s.GetContext(), created.ID)
	s.NoError(err)

	updated, err := s.batches.UpdateBatch(s.GetContext(), created.ID, dto.UpdateBatchRequest{
		MonthlyFee: lo.ToPtr(decimal.NewFromInt(6000)),
	})
	s.NoError(err)
	s.True(updated.MonthlyFee.Equal(decimal.NewFromInt(6000)))

	got, err := s.batches.GetBatch(s.GetContext(), created.ID)
	s.NoError(err)
	s.True(got.MonthlyFee.Equal(decimal.NewFromInt(6000)))
}

func (s *BatchServiceSuite) TestArchiveBatch() {
	created := s.createBatch("teacher-1", 5000, 30)

	err := s.batches.ArchiveBatch(s.GetContext(), created.ID, "teacher-2")
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))

	s.NoError(s.batches.ArchiveBatch(s.GetContext(), created.ID, "teacher-1"))

	got, err := s.batches.GetBatch(s.GetContext(), created.ID)
	s.NoError(err)
	s.Equal(types.StatusArchived, got.Status)

	_, err = s.batches.UpdateBatch(s.GetContext(), created.ID, dto.UpdateBatchRequest{
		Name: lo.ToPtr("Renamed"),
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *BatchServiceSuite) TestQuoteContribution() {
	created := s.createBatch("teacher-1", 5000, 30)

	quote, err := s.batches.QuoteContribution(s.GetContext(), created.ID)
	s.NoError(err)
	// 30 seats at the floor beats 7% of 5000.
	s.True(quote.Contribution.Equal(decimal.NewFromInt(1050)),
		"got %s, want 1050", quote.Contribution)
}

func (s *BatchServiceSuite) TestApproveEnrollment() {
	created := s.createBatch("teacher-1", 500, 2)

	e, err := s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-1",
		BatchID:   created.ID,
	})
	s.NoError(err)
	s.NotEmpty(e.ID)

	// Same student twice.
	_, err = s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-1",
		BatchID:   created.ID,
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))

	// Fill the last seat, then overflow.
	_, err = s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-2",
		BatchID:   created.ID,
	})
	s.NoError(err)

	_, err = s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-3",
		BatchID:   created.ID,
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *BatchServiceSuite) TestApproveEnrollmentAccruesCurrentMonth() {
	created := s.createBatch("teacher-1", 500, 10)

	_, err := s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-1",
		BatchID:   created.ID,
	})
	s.NoError(err)

	rows := s.obligationsFor("student-1", created.ID)
	s.Len(rows, 1)
	s.True(rows[0].Period.Equal(types.BillingPeriodStart(s.GetNow())))
	s.True(rows[0].Amount.Equal(decimal.NewFromInt(500)))
	s.Equal(types.ObligationStatusDue, rows[0].ObligationStatus)
}

func (s *BatchServiceSuite) TestReApprovalKeepsSingleCurrentMonthRow() {
	created := s.createBatch("teacher-1", 500, 10)

	e, err := s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-1",
		BatchID:   created.ID,
	})
	s.NoError(err)
	s.NoError(s.batches.RemoveEnrollment(s.GetContext(), e.ID, "teacher-1"))

	// Removal keeps the current month owed, so re-joining within the same
	// month must not accrue a second row.
	_, err = s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-1",
		BatchID:   created.ID,
	})
	s.NoError(err)

	rows := s.obligationsFor("student-1", created.ID)
	s.Len(rows, 1)
}

func (s *BatchServiceSuite) TestApproveEnrollmentRejectsArchivedBatch() {
	created := s.createBatch("teacher-1", 500, 10)
	s.NoError(s.batches.ArchiveBatch(s.GetContext(), created.ID, "teacher-1"))

	_, err := s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-1",
		BatchID:   created.ID,
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *BatchServiceSuite) TestRemoveEnrollmentCancelsFutureObligations() {
	created := s.createBatch("teacher-1", 500, 10)
	e, err := s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-1",
		BatchID:   created.ID,
	})
	s.NoError(err)

	// Approval accrued the current month; add next month's row by hand.
	current := types.BillingPeriodStart(s.GetNow())
	rows := s.obligationsFor("student-1", created.ID)
	s.Len(rows, 1)
	currentResp := rows[0]
	futureResp, err := s.ledger.CreateObligation(s.GetContext(), dto.CreateObligationRequest{
		StudentID: "student-1",
		BatchID:   created.ID,
		Period:    types.NextBillingPeriod(current),
	})
	s.NoError(err)

	err = s.batches.RemoveEnrollment(s.GetContext(), e.ID, "teacher-2")
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))

	s.NoError(s.batches.RemoveEnrollment(s.GetContext(), e.ID, "teacher-1"))

	// The current month's liability survives; the future one is gone.
	still, err := s.ledger.GetObligation(s.GetContext(), currentResp.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusDue, still.ObligationStatus)

	_, err = s.ledger.GetObligation(s.GetContext(), futureResp.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *BatchServiceSuite) TestGetTeacherMetrics() {
	first := s.createBatch("teacher-1", 5000, 30)
	second := s.createBatch("teacher-1", 20000, 10)

	for i := 0; i < 4; i++ {
		_, err := s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
			StudentID: fmt.Sprintf("student-%d", i),
			BatchID:   first.ID,
		})
		s.NoError(err)
	}
	_, err := s.batches.ApproveEnrollment(s.GetContext(), dto.CreateEnrollmentRequest{
		StudentID: "student-x",
		BatchID:   second.ID,
	})
	s.NoError(err)

	metrics, err := s.batches.GetTeacherMetrics(s.GetContext(), "teacher-1")
	s.NoError(err)
	s.Equal(2, metrics.TotalBatches)
	s.Equal(5, metrics.TotalStudents)
	// 4 x 5000 + 1 x 20000
	s.True(metrics.TotalFees.Equal(decimal.NewFromInt(40000)))
	// max(30*35, 350) + max(10*35, 1400)
	s.True(metrics.TotalContribution.Equal(decimal.NewFromInt(2450)))
}
