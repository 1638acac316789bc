package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	"github.com/tutorbill/tutorbill/internal/domain/enrollment"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/testutil"
	"github.com/tutorbill/tutorbill/internal/types"
)

type LedgerServiceSuite struct {
	testutil.BaseServiceTestSuite
	ledger LedgerService
}

func TestLedgerService(t *testing.T) {
	suite.Run(t, new(LedgerServiceSuite))
}

func (s *LedgerServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.ledger = NewLedgerService(newTestServiceParams(&s.BaseServiceTestSuite))
}

func (s *LedgerServiceSuite) createBatch(teacherID string, fee int64) *batch.Batch {
	b := &batch.Batch{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BATCH),
		TeacherID:    teacherID,
		Name:         "Evening Math",
		MonthlyFee:   decimal.NewFromInt(fee),
		StudentLimit: 30,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().BatchRepo.Create(s.GetContext(), b))
	return b
}

func (s *LedgerServiceSuite) enroll(studentID, batchID string) *enrollment.Enrollment {
	e := &enrollment.Enrollment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENROLLMENT),
		StudentID: studentID,
		BatchID:   batchID,
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().EnrollmentRepo.Create(s.GetContext(), e))
	return e
}

func (s *LedgerServiceSuite) createObligation(studentID, batchID string, period time.Time) *dto.ObligationResponse {
	resp, err := s.ledger.CreateObligation(s.GetContext(), dto.CreateObligationRequest{
		StudentID: studentID,
		BatchID:   batchID,
		Period:    period,
	})
	s.NoError(err)
	return resp
}

// moveToPending mimics a payment initiation holding the obligation.
func (s *LedgerServiceSuite) moveToPending(id, ref string) {
	won, err := s.GetStores().ObligationRepo.UpdateStatusIf(s.GetContext(), id, types.ObligationStatusDue, obligation.StatusUpdate{
		ToStatus:      types.ObligationStatusPending,
		PaymentMode:   lo.ToPtr(types.PaymentModeOnline),
		SettlementRef: &ref,
	})
	s.NoError(err)
	s.True(won)
}

func (s *LedgerServiceSuite) TestCreateObligationSnapshotsAmount() {
	b := s.createBatch("teacher-1", 500)
	period := types.BillingPeriodStart(s.GetNow())

	resp := s.createObligation("student-1", b.ID, period)
	s.True(resp.Amount.Equal(decimal.NewFromInt(500)))
	s.Equal(types.ObligationStatusDue, resp.ObligationStatus)
	s.Equal(types.PaymentModeUnset, resp.PaymentMode)
	s.Equal(5, resp.DueDate.Day())

	// A later fee change must not retouch the existing row.
	b.MonthlyFee = decimal.NewFromInt(600)
	s.NoError(s.GetStores().BatchRepo.Update(s.GetContext(), b))

	unchanged, err := s.ledger.GetObligation(s.GetContext(), resp.ID)
	s.NoError(err)
	s.True(unchanged.Amount.Equal(decimal.NewFromInt(500)))

	next := s.createObligation("student-1", b.ID, types.NextBillingPeriod(period))
	s.True(next.Amount.Equal(decimal.NewFromInt(600)))
}

func (s *LedgerServiceSuite) TestCreateObligationRejectsDuplicatePeriod() {
	b := s.createBatch("teacher-1", 500)
	period := types.BillingPeriodStart(s.GetNow())

	s.createObligation("student-1", b.ID, period)

	_, err := s.ledger.CreateObligation(s.GetContext(), dto.CreateObligationRequest{
		StudentID: "student-1",
		BatchID:   b.ID,
		Period:    period.Add(36 * time.Hour), // same month, different day
	})
	s.Error(err)
	s.True(ierr.IsDuplicateObligation(err))
}

func (s *LedgerServiceSuite) TestCreateObligationRejectsArchivedBatch() {
	b := s.createBatch("teacher-1", 500)
	s.NoError(s.GetStores().BatchRepo.Archive(s.GetContext(), b.ID))

	_, err := s.ledger.CreateObligation(s.GetContext(), dto.CreateObligationRequest{
		StudentID: "student-1",
		BatchID:   b.ID,
		Period:    s.GetNow(),
	})
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *LedgerServiceSuite) TestMarkCash() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())

	paid, err := s.ledger.MarkCash(s.GetContext(), resp.ID, "teacher-1")
	s.NoError(err)
	s.Equal(types.ObligationStatusPaid, paid.ObligationStatus)
	s.Equal(types.PaymentModeCash, paid.PaymentMode)
	s.NotNil(paid.PaidDate)
	s.Equal(1, paid.MonthsCovered)
}

func (s *LedgerServiceSuite) TestMarkCashRejectsForeignTeacher() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())

	_, err := s.ledger.MarkCash(s.GetContext(), resp.ID, "teacher-2")
	s.Error(err)
	s.True(ierr.IsPermissionDenied(err))
}

func (s *LedgerServiceSuite) TestMarkCashSettlesOverdue() {
	b := s.createBatch("teacher-1", 500)
	pastPeriod := types.BillingPeriodStart(s.GetNow().AddDate(0, -2, 0))
	resp := s.createObligation("student-1", b.ID, pastPeriod)

	count, err := s.ledger.RecomputeOverdue(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Equal(1, count)

	paid, err := s.ledger.MarkCash(s.GetContext(), resp.ID, "teacher-1")
	s.NoError(err)
	s.Equal(types.ObligationStatusPaid, paid.ObligationStatus)
}

func (s *LedgerServiceSuite) TestMarkCashRejectsPendingObligation() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())
	s.moveToPending(resp.ID, "ref-1")

	_, err := s.ledger.MarkCash(s.GetContext(), resp.ID, "teacher-1")
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))
}

func (s *LedgerServiceSuite) TestSettleOnline() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())
	s.moveToPending(resp.ID, "ref-1")

	settled, replayed, err := s.ledger.SettleOnline(s.GetContext(), resp.ID, "ref-1", 1)
	s.NoError(err)
	s.False(replayed)
	s.Equal(types.ObligationStatusPaid, settled.ObligationStatus)
	s.Equal(types.PaymentModeOnline, settled.PaymentMode)
	s.NotNil(settled.PaidDate)
}

func (s *LedgerServiceSuite) TestSettleOnlineReplayIsNoOp() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())
	s.moveToPending(resp.ID, "ref-1")

	_, _, err := s.ledger.SettleOnline(s.GetContext(), resp.ID, "ref-1", 1)
	s.NoError(err)

	// The provider redelivers the same confirmation.
	settled, replayed, err := s.ledger.SettleOnline(s.GetContext(), resp.ID, "ref-1", 1)
	s.NoError(err)
	s.True(replayed)
	s.Equal(types.ObligationStatusPaid, settled.ObligationStatus)

	// A different reference against a paid obligation is a conflict.
	_, _, err = s.ledger.SettleOnline(s.GetContext(), resp.ID, "ref-2", 1)
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))
}

func (s *LedgerServiceSuite) TestSettleOnlineRejectsForeignReference() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())
	s.moveToPending(resp.ID, "ref-1")

	// A confirmation under another reference must not steal the hold.
	_, _, err := s.ledger.SettleOnline(s.GetContext(), resp.ID, "ref-2", 1)
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))

	held, err := s.ledger.GetObligation(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusPending, held.ObligationStatus)

	// The genuine reference still settles.
	settled, replayed, err := s.ledger.SettleOnline(s.GetContext(), resp.ID, "ref-1", 1)
	s.NoError(err)
	s.False(replayed)
	s.Equal(types.ObligationStatusPaid, settled.ObligationStatus)
}

// settleRaceStore lands a competing settlement between a confirmation's
// obligation fetch and its conditional update.
type settleRaceStore struct {
	obligation.Repository
	once    sync.Once
	preempt func()
}

func (r *settleRaceStore) Get(ctx context.Context, id string) (*obligation.Obligation, error) {
	o, err := r.Repository.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.once.Do(r.preempt)
	return o, nil
}

// settleOutOfBand settles the pending obligation directly at the store,
// standing in for a confirmation that commits first.
func (s *LedgerServiceSuite) settleOutOfBand(id, ref string) {
	now := s.GetNow()
	won, err := s.GetStores().ObligationRepo.UpdateStatusIf(s.GetContext(), id, types.ObligationStatusPending, obligation.StatusUpdate{
		ToStatus:      types.ObligationStatusPaid,
		PaidDate:      &now,
		SettlementRef: &ref,
	})
	s.NoError(err)
	s.True(won)
}

func (s *LedgerServiceSuite) TestSettleOnlineLostRaceMatchingRefIsNoOp() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())
	s.moveToPending(resp.ID, "ref-1")

	params := newTestServiceParams(&s.BaseServiceTestSuite)
	raced := &settleRaceStore{Repository: params.ObligationRepo}
	raced.preempt = func() { s.settleOutOfBand(resp.ID, "ref-1") }
	params.ObligationRepo = raced
	ledger := NewLedgerService(params)

	settled, replayed, err := ledger.SettleOnline(s.GetContext(), resp.ID, "ref-1", 1)
	s.NoError(err)
	s.True(replayed)
	s.Equal(types.ObligationStatusPaid, settled.ObligationStatus)
}

func (s *LedgerServiceSuite) TestSettleOnlineLostRaceForeignRefConflicts() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())
	s.moveToPending(resp.ID, "ref-1")

	params := newTestServiceParams(&s.BaseServiceTestSuite)
	raced := &settleRaceStore{Repository: params.ObligationRepo}
	raced.preempt = func() { s.settleOutOfBand(resp.ID, "ref-other") }
	params.ObligationRepo = raced
	ledger := NewLedgerService(params)

	_, _, err := ledger.SettleOnline(s.GetContext(), resp.ID, "ref-1", 1)
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))
}

func (s *LedgerServiceSuite) TestConcurrentSettleOnlineSettlesOnce() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())
	s.moveToPending(resp.ID, "ref-1")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	replays := make([]bool, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, replays[i], errs[i] = s.ledger.SettleOnline(s.GetContext(), resp.ID, "ref-1", 1)
		}(i)
	}
	wg.Wait()

	// Exactly one confirmation applies the settlement; the other is a replay.
	for _, err := range errs {
		s.NoError(err)
	}
	s.NotEqual(replays[0], replays[1])

	paid, err := s.ledger.GetObligation(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusPaid, paid.ObligationStatus)
	s.Equal("ref-1", *paid.SettlementRef)
}

func (s *LedgerServiceSuite) TestReleaseOnline() {
	b := s.createBatch("teacher-1", 500)
	resp := s.createObligation("student-1", b.ID, s.GetNow())
	s.moveToPending(resp.ID, "ref-1")

	s.NoError(s.ledger.ReleaseOnline(s.GetContext(), resp.ID, "ref-1"))

	released, err := s.ledger.GetObligation(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusDue, released.ObligationStatus)
	s.Equal(types.PaymentModeUnset, released.PaymentMode)
}

func (s *LedgerServiceSuite) TestRecomputeOverdue() {
	b := s.createBatch("teacher-1", 500)
	pastPeriod := types.BillingPeriodStart(s.GetNow().AddDate(0, -1, 0))
	past := s.createObligation("student-1", b.ID, pastPeriod)
	current := s.createObligation("student-1", b.ID, types.BillingPeriodStart(s.GetNow().AddDate(0, 1, 0)))

	count, err := s.ledger.RecomputeOverdue(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Equal(1, count)

	overdue, err := s.ledger.GetObligation(s.GetContext(), past.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusOverdue, overdue.ObligationStatus)

	untouched, err := s.ledger.GetObligation(s.GetContext(), current.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusDue, untouched.ObligationStatus)

	// Re-running the sweep finds nothing new.
	count, err = s.ledger.RecomputeOverdue(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Equal(0, count)
}

func (s *LedgerServiceSuite) TestExpirePendingPayments() {
	b := s.createBatch("teacher-1", 500)
	stale := s.createObligation("student-1", b.ID, s.GetNow())
	fresh := s.createObligation("student-2", b.ID, s.GetNow())
	s.moveToPending(stale.ID, "ref-stale")
	s.moveToPending(fresh.ID, "ref-fresh")

	store := s.GetStores().ObligationRepo.(*testutil.InMemoryObligationStore)
	store.SetPendingSince(stale.ID, s.GetNow().Add(-time.Hour))

	count, err := s.ledger.ExpirePendingPayments(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Equal(1, count)

	expired, err := s.ledger.GetObligation(s.GetContext(), stale.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusDue, expired.ObligationStatus)

	held, err := s.ledger.GetObligation(s.GetContext(), fresh.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusPending, held.ObligationStatus)
}

func (s *LedgerServiceSuite) TestCancelFutureObligations() {
	b := s.createBatch("teacher-1", 500)
	current := types.BillingPeriodStart(s.GetNow())
	kept := s.createObligation("student-1", b.ID, current)
	next := s.createObligation("student-1", b.ID, types.NextBillingPeriod(current))

	count, err := s.ledger.CancelFutureObligations(s.GetContext(), "student-1", b.ID, types.NextBillingPeriod(current))
	s.NoError(err)
	s.Equal(1, count)

	_, err = s.ledger.GetObligation(s.GetContext(), next.ID)
	s.Error(err)
	s.True(ierr.IsNotFound(err))

	still, err := s.ledger.GetObligation(s.GetContext(), kept.ID)
	s.NoError(err)
	s.Equal(types.ObligationStatusDue, still.ObligationStatus)
}

func (s *LedgerServiceSuite) TestGenerateMonthlyObligations() {
	b := s.createBatch("teacher-1", 500)
	s.enroll("student-1", b.ID)
	s.enroll("student-2", b.ID)

	period := types.BillingPeriodStart(s.GetNow())
	count, err := s.ledger.GenerateMonthlyObligations(s.GetContext(), period)
	s.NoError(err)
	s.Equal(2, count)

	// Idempotent: the second run sees the duplicates and skips them.
	count, err = s.ledger.GenerateMonthlyObligations(s.GetContext(), period)
	s.NoError(err)
	s.Equal(0, count)
}

func (s *LedgerServiceSuite) TestGenerateMonthlyObligationsSkipsArchivedBatch() {
	active := s.createBatch("teacher-1", 500)
	archived := s.createBatch("teacher-1", 800)
	s.enroll("student-1", active.ID)
	s.enroll("student-2", archived.ID)
	s.NoError(s.GetStores().BatchRepo.Archive(s.GetContext(), archived.ID))

	count, err := s.ledger.GenerateMonthlyObligations(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Equal(1, count)
}
