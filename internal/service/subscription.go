package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/subscription"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// SubscriptionService runs the teacher-level subscription state machine and
// owns the derived materials lock. materials_locked is true exactly when the
// account is Suspended; unlock takes effect the moment a payment confirms,
// so callers must re-check status on every materials read.
type SubscriptionService interface {
	CreateAccount(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionAccountResponse, error)
	GetAccount(ctx context.Context, teacherID string) (*dto.SubscriptionAccountResponse, error)
	GetStatus(ctx context.Context, teacherID string) (*dto.SubscriptionStatusResponse, error)

	// ListPayments returns the teacher's billing cycle history, oldest first.
	ListPayments(ctx context.Context, teacherID string) ([]*dto.SubscriptionPaymentResponse, error)

	// ConfirmPayment settles the cycle payment and reactivates the account
	// from any delinquent state. Idempotent under replayed references.
	ConfirmPayment(ctx context.Context, req dto.ConfirmSubscriptionPaymentRequest) (*dto.SubscriptionAccountResponse, error)

	// EvaluateCycle ages delinquent accounts: past-due Active accounts enter
	// the grace period, exhausted grace periods suspend and lock materials,
	// and never-paid accounts eventually expire.
	EvaluateCycle(ctx context.Context, now time.Time) (int, error)
}

type subscriptionService struct {
	ServiceParams
	feeCalc FeeCalculatorService
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
		feeCalc:       NewFeeCalculatorService(params.Config.Billing),
	}
}

func (s *subscriptionService) CreateAccount(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionAccountResponse, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	if existing, err := s.SubscriptionRepo.GetAccountByTeacher(ctx, req.TeacherID); err == nil && existing != nil {
		return nil, ierr.NewError("subscription account already exists").
			WithHint("The teacher already has a subscription account").
			WithReportableDetails(map[string]any{"teacher_id": req.TeacherID}).
			Mark(ierr.ErrAlreadyExists)
	} else if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	plan := req.Plan
	if plan == "" {
		plan = "standard"
	}

	now := time.Now().UTC()
	account := &subscription.Account{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		TeacherID:          req.TeacherID,
		Plan:               plan,
		SubscriptionStatus: types.SubscriptionStatusActive,
		NextBillingDate:    now.AddDate(0, 1, 0),
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	if err := account.Validate(); err != nil {
		return nil, err
	}

	if err := s.SubscriptionRepo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	if _, err := s.openCyclePayment(ctx, account, now); err != nil {
		return nil, err
	}

	s.Logger.Infow("created subscription account",
		"account_id", account.ID,
		"teacher_id", account.TeacherID,
		"plan", account.Plan)

	return dto.NewSubscriptionAccountResponse(account), nil
}

// openCyclePayment opens the Due payment row for the cycle starting at start.
// The amount is the tiered teacher fee at cycle open.
func (s *subscriptionService) openCyclePayment(ctx context.Context, account *subscription.Account, start time.Time) (*subscription.Payment, error) {
	totalStudents, err := s.EnrollmentRepo.CountByTeacher(ctx, account.TeacherID)
	if err != nil {
		return nil, err
	}

	amount, err := s.feeCalc.TeacherFee(totalStudents)
	if err != nil {
		return nil, err
	}

	payment := &subscription.Payment{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_PAYMENT),
		AccountID:          account.ID,
		Amount:             amount,
		BillingPeriodStart: start,
		BillingPeriodEnd:   account.NextBillingDate,
		PaymentStatus:      types.SubscriptionPaymentStatusDue,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
	if err := payment.Validate(); err != nil {
		return nil, err
	}
	if err := s.SubscriptionRepo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *subscriptionService) GetAccount(ctx context.Context, teacherID string) (*dto.SubscriptionAccountResponse, error) {
	account, err := s.SubscriptionRepo.GetAccountByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionAccountResponse(account), nil
}

func (s *subscriptionService) GetStatus(ctx context.Context, teacherID string) (*dto.SubscriptionStatusResponse, error) {
	account, err := s.SubscriptionRepo.GetAccountByTeacher(ctx, teacherID)
	if err != nil {
		if ierr.IsNotFound(err) {
			// No account yet: nothing due, nothing locked.
			return &dto.SubscriptionStatusResponse{}, nil
		}
		return nil, err
	}

	resp := &dto.SubscriptionStatusResponse{
		SubscriptionActive: account.SubscriptionStatus == types.SubscriptionStatusActive,
		MaterialsLocked:    account.MaterialsLocked,
		LockReason:         account.LockReason,
		GracePeriodEnds:    account.GracePeriodEnds,
		NextPaymentDue:     lo.ToPtr(account.NextBillingDate),
	}

	if open, err := s.SubscriptionRepo.GetOpenPayment(ctx, account.ID); err == nil && open != nil {
		resp.AmountDue = lo.ToPtr(open.Amount)
	} else if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	return resp, nil
}

func (s *subscriptionService) ListPayments(ctx context.Context, teacherID string) ([]*dto.SubscriptionPaymentResponse, error) {
	account, err := s.SubscriptionRepo.GetAccountByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	payments, err := s.SubscriptionRepo.ListPayments(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	return lo.Map(payments, func(p *subscription.Payment, _ int) *dto.SubscriptionPaymentResponse {
		return dto.NewSubscriptionPaymentResponse(p)
	}), nil
}

func (s *subscriptionService) ConfirmPayment(ctx context.Context, req dto.ConfirmSubscriptionPaymentRequest) (*dto.SubscriptionAccountResponse, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	payment, err := s.SubscriptionRepo.GetPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}

	if payment.PaymentStatus == types.SubscriptionPaymentStatusPaid {
		return s.replayedConfirmation(ctx, payment, req.SettlementRef)
	}

	account, err := s.SubscriptionRepo.GetAccount(ctx, payment.AccountID)
	if err != nil {
		return nil, err
	}

	// Settling the cycle is a compare-and-set: a webhook retry racing a user
	// poll produces exactly one winner, and only the winner advances the
	// account and opens the next cycle.
	now := time.Now().UTC()
	won, err := s.SubscriptionRepo.UpdatePaymentStatusIf(ctx, payment.ID,
		types.SubscriptionPaymentStatusDue, subscription.PaymentUpdate{
			ToStatus:      types.SubscriptionPaymentStatusPaid,
			PaidDate:      &now,
			SettlementRef: &req.SettlementRef,
		})
	if err != nil {
		return nil, err
	}
	if !won {
		settled, err := s.SubscriptionRepo.GetPayment(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		return s.replayedConfirmation(ctx, settled, req.SettlementRef)
	}

	// Payment reactivates the account from any delinquent state, with
	// immediate unlock and no penalty period.
	fromStatus := account.SubscriptionStatus
	account.SubscriptionStatus = types.SubscriptionStatusActive
	account.MaterialsLocked = false
	account.LockReason = nil
	account.GracePeriodEnds = nil
	account.NextBillingDate = account.NextBillingDate.AddDate(0, 1, 0)
	account.UpdatedAt = now
	if err := s.SubscriptionRepo.UpdateAccount(ctx, account); err != nil {
		return nil, err
	}

	if _, err := s.openCyclePayment(ctx, account, now); err != nil {
		return nil, err
	}

	s.Logger.Infow("confirmed subscription payment",
		"account_id", account.ID,
		"payment_id", payment.ID,
		"from_status", fromStatus,
		"next_billing_date", account.NextBillingDate)

	return dto.NewSubscriptionAccountResponse(account), nil
}

// replayedConfirmation resolves a confirmation that arrived after the cycle
// settled: a matching reference is a no-op returning the current account
// state, any other reference is a conflict.
func (s *subscriptionService) replayedConfirmation(ctx context.Context, payment *subscription.Payment, settlementRef string) (*dto.SubscriptionAccountResponse, error) {
	if payment.SettlementRef != nil && *payment.SettlementRef == settlementRef {
		account, err := s.SubscriptionRepo.GetAccount(ctx, payment.AccountID)
		if err != nil {
			return nil, err
		}
		s.Logger.Infow("ignoring replayed subscription payment confirmation",
			"payment_id", payment.ID,
			"settlement_ref", settlementRef)
		return dto.NewSubscriptionAccountResponse(account), nil
	}
	return nil, ierr.NewError("subscription payment already settled").
		WithHint("This billing cycle has already been paid").
		Mark(ierr.ErrInvalidTransition)
}

func (s *subscriptionService) EvaluateCycle(ctx context.Context, now time.Time) (int, error) {
	accounts, err := s.SubscriptionRepo.ListAccountsDueBefore(ctx, now)
	if err != nil {
		return 0, err
	}

	transitions := 0
	for _, account := range accounts {
		open, err := s.SubscriptionRepo.GetOpenPayment(ctx, account.ID)
		if err != nil {
			if ierr.IsNotFound(err) {
				continue
			}
			return transitions, err
		}
		if open == nil || open.PaymentStatus == types.SubscriptionPaymentStatusPaid {
			continue
		}

		moved, err := s.ageAccount(ctx, account, now)
		if err != nil {
			return transitions, err
		}
		if moved {
			transitions++
		}
	}

	if transitions > 0 {
		s.Logger.Infow("aged delinquent subscription accounts", "transitions", transitions)
	}
	return transitions, nil
}

func (s *subscriptionService) ageAccount(ctx context.Context, account *subscription.Account, now time.Time) (bool, error) {
	switch account.SubscriptionStatus {
	case types.SubscriptionStatusActive:
		if now.Before(account.NextBillingDate) {
			return false, nil
		}
		next := *account
		next.SubscriptionStatus = types.SubscriptionStatusGracePeriod
		next.GracePeriodEnds = lo.ToPtr(account.NextBillingDate.Add(s.Config.Billing.GraceWindow))
		next.UpdatedAt = now
		won, err := s.SubscriptionRepo.UpdateAccountStatusIf(ctx, account.ID, types.SubscriptionStatusActive, &next)
		if err != nil || !won {
			return false, err
		}
		s.Logger.Infow("subscription entered grace period",
			"account_id", account.ID,
			"grace_period_ends", *next.GracePeriodEnds)
		return true, nil

	case types.SubscriptionStatusGracePeriod:
		if account.GracePeriodEnds == nil || now.Before(*account.GracePeriodEnds) {
			return false, nil
		}
		// The only path that sets the materials lock.
		next := *account
		next.SubscriptionStatus = types.SubscriptionStatusSuspended
		next.MaterialsLocked = true
		next.LockReason = lo.ToPtr(types.LockReasonSubscriptionOverdue)
		next.UpdatedAt = now
		won, err := s.SubscriptionRepo.UpdateAccountStatusIf(ctx, account.ID, types.SubscriptionStatusGracePeriod, &next)
		if err != nil || !won {
			return false, err
		}
		s.Logger.Warnw("subscription suspended, materials locked",
			"account_id", account.ID,
			"teacher_id", account.TeacherID)
		return true, nil

	case types.SubscriptionStatusSuspended:
		// Accounts that never paid a single cycle age out entirely.
		everPaid, err := s.SubscriptionRepo.HasPaidPayment(ctx, account.ID)
		if err != nil {
			return false, err
		}
		if everPaid || now.Before(account.NextBillingDate.Add(s.Config.Billing.ExpiryWindow)) {
			return false, nil
		}
		next := *account
		next.SubscriptionStatus = types.SubscriptionStatusExpired
		next.MaterialsLocked = false
		next.LockReason = nil
		next.UpdatedAt = now
		won, err := s.SubscriptionRepo.UpdateAccountStatusIf(ctx, account.ID, types.SubscriptionStatusSuspended, &next)
		if err != nil || !won {
			return false, err
		}
		s.Logger.Infow("subscription expired", "account_id", account.ID)
		return true, nil
	}

	return false, nil
}
