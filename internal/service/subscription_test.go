package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	"github.com/tutorbill/tutorbill/internal/domain/enrollment"
	"github.com/tutorbill/tutorbill/internal/domain/subscription"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/testutil"
	"github.com/tutorbill/tutorbill/internal/types"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	subs SubscriptionService
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.subs = NewSubscriptionService(newTestServiceParams(&s.BaseServiceTestSuite))
}

// seedEnrollments gives the teacher one batch with the given number of
// enrolled students.
func (s *SubscriptionServiceSuite) seedEnrollments(teacherID string, students int) {
	b := &batch.Batch{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BATCH),
		TeacherID:    teacherID,
		Name:         "History Evening",
		MonthlyFee:   decimal.NewFromInt(500),
		StudentLimit: students + 5,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().BatchRepo.Create(s.GetContext(), b))

	for i := 0; i < students; i++ {
		e := &enrollment.Enrollment{
			ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENROLLMENT),
			StudentID: fmt.Sprintf("student-%d", i),
			BatchID:   b.ID,
			BaseModel: types.GetDefaultBaseModel(s.GetContext()),
		}
		s.NoError(s.GetStores().EnrollmentRepo.Create(s.GetContext(), e))
	}
}

func (s *SubscriptionServiceSuite) createAccount(teacherID string) *dto.SubscriptionAccountResponse {
	account, err := s.subs.CreateAccount(s.GetContext(), dto.CreateSubscriptionRequest{
		TeacherID: teacherID,
	})
	s.NoError(err)
	return account
}

func (s *SubscriptionServiceSuite) openPayment(accountID string) *subscription.Payment {
	payment, err := s.GetStores().SubscriptionRepo.GetOpenPayment(s.GetContext(), accountID)
	s.NoError(err)
	return payment
}

// backdate rewinds the account's next billing date so sweeps see it as due.
func (s *SubscriptionServiceSuite) backdate(accountID string, d time.Duration) {
	account, err := s.GetStores().SubscriptionRepo.GetAccount(s.GetContext(), accountID)
	s.NoError(err)
	account.NextBillingDate = account.NextBillingDate.Add(-d)
	if account.GracePeriodEnds != nil {
		ends := account.GracePeriodEnds.Add(-d)
		account.GracePeriodEnds = &ends
	}
	s.NoError(s.GetStores().SubscriptionRepo.UpdateAccount(s.GetContext(), account))
}

func (s *SubscriptionServiceSuite) TestCreateAccount() {
	account := s.createAccount("teacher-1")
	s.Equal(types.SubscriptionStatusActive, account.SubscriptionStatus)
	s.Equal("standard", account.Plan)
	s.False(account.MaterialsLocked)
	s.True(account.NextBillingDate.After(s.GetNow()))

	// The first cycle opens with the base fee: no students enrolled yet.
	payment := s.openPayment(account.ID)
	s.True(payment.Amount.Equal(decimal.NewFromInt(700)))
	s.Equal(types.SubscriptionPaymentStatusDue, payment.PaymentStatus)
}

func (s *SubscriptionServiceSuite) TestCreateAccountRejectsDuplicate() {
	s.createAccount("teacher-1")

	_, err := s.subs.CreateAccount(s.GetContext(), dto.CreateSubscriptionRequest{
		TeacherID: "teacher-1",
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *SubscriptionServiceSuite) TestCycleAmountUsesTieredFee() {
	// 25 students: 700 base plus 5 over the included 20 at 35 each.
	s.seedEnrollments("teacher-1", 25)
	account := s.createAccount("teacher-1")

	payment := s.openPayment(account.ID)
	s.True(payment.Amount.Equal(decimal.NewFromInt(875)),
		"got %s, want 875", payment.Amount)
}

func (s *SubscriptionServiceSuite) TestConfirmPayment() {
	account := s.createAccount("teacher-1")
	payment := s.openPayment(account.ID)
	firstBilling := account.NextBillingDate

	confirmed, err := s.subs.ConfirmPayment(s.GetContext(), dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-1",
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, confirmed.SubscriptionStatus)
	s.True(confirmed.NextBillingDate.After(firstBilling))

	paid, err := s.GetStores().SubscriptionRepo.GetPayment(s.GetContext(), payment.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionPaymentStatusPaid, paid.PaymentStatus)
	s.NotNil(paid.PaidDate)

	// A fresh cycle payment opens immediately.
	next := s.openPayment(account.ID)
	s.NotEqual(payment.ID, next.ID)
}

func (s *SubscriptionServiceSuite) TestConfirmPaymentReplayIsNoOp() {
	account := s.createAccount("teacher-1")
	payment := s.openPayment(account.ID)

	req := dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-1",
	}
	first, err := s.subs.ConfirmPayment(s.GetContext(), req)
	s.NoError(err)

	replayed, err := s.subs.ConfirmPayment(s.GetContext(), req)
	s.NoError(err)
	s.Equal(first.NextBillingDate, replayed.NextBillingDate)

	// Only one follow-up cycle was opened.
	payments, err := s.GetStores().SubscriptionRepo.ListPayments(s.GetContext(), account.ID)
	s.NoError(err)
	s.Len(payments, 2)

	// A different reference against the settled cycle is a conflict.
	_, err = s.subs.ConfirmPayment(s.GetContext(), dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-2",
	})
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))
}

// confirmRaceStore lands a competing settlement between a confirmation's
// payment fetch and its conditional update.
type confirmRaceStore struct {
	subscription.Repository
	once    sync.Once
	preempt func()
}

func (r *confirmRaceStore) GetPayment(ctx context.Context, id string) (*subscription.Payment, error) {
	payment, err := r.Repository.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	r.once.Do(r.preempt)
	return payment, nil
}

// settleOutOfBand settles the cycle directly at the store, standing in for a
// confirmation that commits first.
func (s *SubscriptionServiceSuite) settleOutOfBand(paymentID, ref string) {
	now := s.GetNow()
	won, err := s.GetStores().SubscriptionRepo.UpdatePaymentStatusIf(s.GetContext(), paymentID,
		types.SubscriptionPaymentStatusDue, subscription.PaymentUpdate{
			ToStatus:      types.SubscriptionPaymentStatusPaid,
			PaidDate:      &now,
			SettlementRef: &ref,
		})
	s.NoError(err)
	s.True(won)
}

func (s *SubscriptionServiceSuite) TestConfirmPaymentLostRaceMatchingRefIsNoOp() {
	account := s.createAccount("teacher-1")
	payment := s.openPayment(account.ID)
	firstBilling := account.NextBillingDate

	params := newTestServiceParams(&s.BaseServiceTestSuite)
	raced := &confirmRaceStore{Repository: params.SubscriptionRepo}
	raced.preempt = func() { s.settleOutOfBand(payment.ID, "sub-ref-1") }
	params.SubscriptionRepo = raced
	subs := NewSubscriptionService(params)

	confirmed, err := subs.ConfirmPayment(s.GetContext(), dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-1",
	})
	s.NoError(err)

	// The loser neither advances the billing date nor opens a second cycle.
	s.Equal(firstBilling, confirmed.NextBillingDate)
	payments, err := s.GetStores().SubscriptionRepo.ListPayments(s.GetContext(), account.ID)
	s.NoError(err)
	s.Len(payments, 1)
}

func (s *SubscriptionServiceSuite) TestConfirmPaymentLostRaceForeignRefConflicts() {
	account := s.createAccount("teacher-1")
	payment := s.openPayment(account.ID)

	params := newTestServiceParams(&s.BaseServiceTestSuite)
	raced := &confirmRaceStore{Repository: params.SubscriptionRepo}
	raced.preempt = func() { s.settleOutOfBand(payment.ID, "sub-ref-other") }
	params.SubscriptionRepo = raced
	subs := NewSubscriptionService(params)

	_, err := subs.ConfirmPayment(s.GetContext(), dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-1",
	})
	s.Error(err)
	s.True(ierr.IsInvalidTransition(err))
}

func (s *SubscriptionServiceSuite) TestConcurrentConfirmationsAdvanceOnce() {
	account := s.createAccount("teacher-1")
	payment := s.openPayment(account.ID)
	firstBilling := account.NextBillingDate

	req := dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-1",
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.subs.ConfirmPayment(s.GetContext(), req)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		s.NoError(err)
	}

	// Exactly one confirmation won: one month advanced, one follow-up cycle.
	refreshed, err := s.GetStores().SubscriptionRepo.GetAccount(s.GetContext(), account.ID)
	s.NoError(err)
	s.Equal(firstBilling.AddDate(0, 1, 0), refreshed.NextBillingDate)

	payments, err := s.GetStores().SubscriptionRepo.ListPayments(s.GetContext(), account.ID)
	s.NoError(err)
	s.Len(payments, 2)
}

func (s *SubscriptionServiceSuite) TestEvaluateCycleEntersGracePeriod() {
	account := s.createAccount("teacher-1")
	s.backdate(account.ID, 32*24*time.Hour)

	moved, err := s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Equal(1, moved)

	status, err := s.subs.GetStatus(s.GetContext(), "teacher-1")
	s.NoError(err)
	s.False(status.SubscriptionActive)
	s.False(status.MaterialsLocked)
	s.NotNil(status.GracePeriodEnds)
}

func (s *SubscriptionServiceSuite) TestEvaluateCycleSuspendsAfterGrace() {
	account := s.createAccount("teacher-1")
	s.backdate(account.ID, 32*24*time.Hour)

	_, err := s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
	s.NoError(err)

	// The grace window runs out.
	s.backdate(account.ID, 8*24*time.Hour)
	moved, err := s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Equal(1, moved)

	status, err := s.subs.GetStatus(s.GetContext(), "teacher-1")
	s.NoError(err)
	s.True(status.MaterialsLocked)
	s.NotNil(status.LockReason)
	s.Equal(types.LockReasonSubscriptionOverdue, *status.LockReason)
}

func (s *SubscriptionServiceSuite) TestPaymentUnlocksSuspendedAccount() {
	account := s.createAccount("teacher-1")
	s.backdate(account.ID, 40*24*time.Hour)
	_, err := s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.backdate(account.ID, 8*24*time.Hour)
	_, err = s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
	s.NoError(err)

	payment := s.openPayment(account.ID)
	confirmed, err := s.subs.ConfirmPayment(s.GetContext(), dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-1",
	})
	s.NoError(err)
	s.Equal(types.SubscriptionStatusActive, confirmed.SubscriptionStatus)
	s.False(confirmed.MaterialsLocked)
	s.Nil(confirmed.LockReason)
	s.Nil(confirmed.GracePeriodEnds)

	status, err := s.subs.GetStatus(s.GetContext(), "teacher-1")
	s.NoError(err)
	s.True(status.SubscriptionActive)
	s.False(status.MaterialsLocked)
}

func (s *SubscriptionServiceSuite) TestNeverPaidAccountExpires() {
	account := s.createAccount("teacher-1")
	s.backdate(account.ID, 40*24*time.Hour)
	_, err := s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.backdate(account.ID, 8*24*time.Hour)
	_, err = s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
	s.NoError(err)

	// Far past the expiry window with no payment ever confirmed.
	s.backdate(account.ID, 60*24*time.Hour)
	moved, err := s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
	s.NoError(err)
	s.Equal(1, moved)

	expired, err := s.GetStores().SubscriptionRepo.GetAccount(s.GetContext(), account.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusExpired, expired.SubscriptionStatus)
	s.False(expired.MaterialsLocked)
}

func (s *SubscriptionServiceSuite) TestPaidAccountNeverExpires() {
	account := s.createAccount("teacher-1")
	payment := s.openPayment(account.ID)
	_, err := s.subs.ConfirmPayment(s.GetContext(), dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-1",
	})
	s.NoError(err)

	// The next cycle goes unpaid all the way past the expiry window.
	s.backdate(account.ID, 200*24*time.Hour)
	for i := 0; i < 3; i++ {
		_, err = s.subs.EvaluateCycle(s.GetContext(), s.GetNow())
		s.NoError(err)
	}

	aged, err := s.GetStores().SubscriptionRepo.GetAccount(s.GetContext(), account.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusSuspended, aged.SubscriptionStatus)
	s.True(aged.MaterialsLocked)
}

func (s *SubscriptionServiceSuite) TestListPayments() {
	account := s.createAccount("teacher-1")
	payment := s.openPayment(account.ID)
	_, err := s.subs.ConfirmPayment(s.GetContext(), dto.ConfirmSubscriptionPaymentRequest{
		PaymentID:     payment.ID,
		SettlementRef: "sub-ref-1",
	})
	s.NoError(err)

	history, err := s.subs.ListPayments(s.GetContext(), "teacher-1")
	s.NoError(err)
	s.Len(history, 2)
	s.Equal(types.SubscriptionPaymentStatusPaid, history[0].PaymentStatus)
	s.Equal(types.SubscriptionPaymentStatusDue, history[1].PaymentStatus)

	_, err = s.subs.ListPayments(s.GetContext(), "teacher-unknown")
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *SubscriptionServiceSuite) TestGetStatusWithoutAccount() {
	status, err := s.subs.GetStatus(s.GetContext(), "teacher-unknown")
	s.NoError(err)
	s.False(status.SubscriptionActive)
	s.False(status.MaterialsLocked)
	s.Nil(status.AmountDue)
}
