package service

import (
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/testutil"
	"github.com/tutorbill/tutorbill/internal/types"
)

type PaymentIntentServiceSuite struct {
	testutil.BaseServiceTestSuite
	intents PaymentIntentService
	ledger  LedgerService
	batchID string
}

func TestPaymentIntentService(t *testing.T) {
	suite.Run(t, new(PaymentIntentServiceSuite))
}

func (s *PaymentIntentServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := newTestServiceParams(&s.BaseServiceTestSuite)
	s.intents = NewPaymentIntentService(params)
	s.ledger = NewLedgerService(params)
	s.batchID = s.seedArrears(3)
}

// seedArrears creates one batch and the given number of unpaid months at
// 500 each for student-1.
func (s *PaymentIntentServiceSuite) seedArrears(months int) string {
	b := &batch.Batch{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BATCH),
		TeacherID:    "teacher-1",
		Name:         "Chemistry Weekend",
		MonthlyFee:   decimal.NewFromInt(500),
		StudentLimit: 20,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().BatchRepo.Create(s.GetContext(), b))

	period := types.BillingPeriodStart(s.GetNow().AddDate(0, -months+1, 0))
	for i := 0; i < months; i++ {
		_, err := s.ledger.CreateObligation(s.GetContext(), dto.CreateObligationRequest{
			StudentID: "student-1",
			BatchID:   b.ID,
			Period:    period,
		})
		s.NoError(err)
		period = types.NextBillingPeriod(period)
	}
	return b.ID
}

func (s *PaymentIntentServiceSuite) obligationStatuses(ids []string) []types.ObligationStatus {
	return lo.Map(ids, func(id string, _ int) types.ObligationStatus {
		o, err := s.GetStores().ObligationRepo.Get(s.GetContext(), id)
		s.NoError(err)
		return o.ObligationStatus
	})
}

func (s *PaymentIntentServiceSuite) TestInitiateOnlinePaymentByMonths() {
	resp, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    2,
	})
	s.NoError(err)
	s.Len(resp.ObligationIDs, 2)
	s.True(resp.Amount.Equal(decimal.NewFromInt(1000)))
	s.NotEmpty(resp.SettlementRef)
	s.NotEmpty(resp.RedirectURL)

	for _, status := range s.obligationStatuses(resp.ObligationIDs) {
		s.Equal(types.ObligationStatusPending, status)
	}

	recorded := s.GetSettlement().Intents()
	s.Len(recorded, 1)
	s.Equal(resp.SettlementRef, recorded[0].Reference)
	s.True(recorded[0].Amount.Equal(decimal.NewFromInt(1000)))
}

func (s *PaymentIntentServiceSuite) TestInitiateOnlinePaymentByExactAmount() {
	resp, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Amount:    lo.ToPtr(decimal.NewFromInt(1500)),
	})
	s.NoError(err)
	s.Len(resp.ObligationIDs, 3)
	s.True(resp.Amount.Equal(decimal.NewFromInt(1500)))
}

func (s *PaymentIntentServiceSuite) TestInitiateOnlinePaymentRejectsPartialAmount() {
	_, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Amount:    lo.ToPtr(decimal.NewFromInt(1200)),
	})
	s.Error(err)
	s.True(ierr.IsPartialMonthNotSupported(err))
}

func (s *PaymentIntentServiceSuite) TestSecondInitiationIsRejectedWhilePending() {
	_, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    1,
	})
	s.NoError(err)

	// The student reopens the payment page and tries again.
	_, err = s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    2,
	})
	s.Error(err)
	s.True(ierr.IsPaymentAlreadyPending(err))

	s.Len(s.GetSettlement().Intents(), 1)
}

func (s *PaymentIntentServiceSuite) TestProviderFailureReleasesObligations() {
	s.GetSettlement().FailNext = errors.New("gateway unavailable")

	_, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    2,
	})
	s.Error(err)

	// Nothing is held; the student can retry immediately.
	resp, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    2,
	})
	s.NoError(err)
	s.Len(resp.ObligationIDs, 2)
}

func (s *PaymentIntentServiceSuite) TestWebhookSettlesWholeSet() {
	initiated, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    3,
	})
	s.NoError(err)

	resp, err := s.intents.HandleSettlementWebhook(s.GetContext(), dto.SettlementWebhookRequest{
		SettlementRef: initiated.SettlementRef,
		ObligationIDs: initiated.ObligationIDs,
		Event:         "settled",
	})
	s.NoError(err)
	s.Len(resp.Settled, 3)
	s.Empty(resp.Replayed)

	for _, id := range initiated.ObligationIDs {
		o, err := s.GetStores().ObligationRepo.Get(s.GetContext(), id)
		s.NoError(err)
		s.Equal(types.ObligationStatusPaid, o.ObligationStatus)
		s.Equal(types.PaymentModeOnline, o.PaymentMode)
		s.Equal(3, o.MonthsCovered)
		s.NotNil(o.PaidDate)
	}
}

func (s *PaymentIntentServiceSuite) TestWebhookReplayIsIdempotent() {
	initiated, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    2,
	})
	s.NoError(err)

	req := dto.SettlementWebhookRequest{
		SettlementRef: initiated.SettlementRef,
		ObligationIDs: initiated.ObligationIDs,
		Event:         "settled",
	}
	_, err = s.intents.HandleSettlementWebhook(s.GetContext(), req)
	s.NoError(err)

	// The provider redelivers the same callback.
	resp, err := s.intents.HandleSettlementWebhook(s.GetContext(), req)
	s.NoError(err)
	s.Empty(resp.Settled)
	s.Len(resp.Replayed, 2)
}

func (s *PaymentIntentServiceSuite) TestWebhookFailureReleasesSet() {
	initiated, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    2,
	})
	s.NoError(err)

	resp, err := s.intents.HandleSettlementWebhook(s.GetContext(), dto.SettlementWebhookRequest{
		SettlementRef: initiated.SettlementRef,
		ObligationIDs: initiated.ObligationIDs,
		Event:         "failed",
	})
	s.NoError(err)
	s.Len(resp.Released, 2)

	for _, status := range s.obligationStatuses(initiated.ObligationIDs) {
		s.Equal(types.ObligationStatusDue, status)
	}

	// Released months can be paid again.
	again, err := s.intents.InitiateOnlinePayment(s.GetContext(), dto.InitiatePaymentRequest{
		StudentID: "student-1",
		BatchID:   s.batchID,
		Months:    2,
	})
	s.NoError(err)
	s.Len(again.ObligationIDs, 2)
}
