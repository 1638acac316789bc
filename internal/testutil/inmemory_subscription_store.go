package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/tutorbill/tutorbill/internal/domain/subscription"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository. Point reads
// return detached copies, matching the row hydration of the real storage
// layer: a caller holding a stale copy cannot observe or leak writes made by
// a concurrent confirmation.
type InMemorySubscriptionStore struct {
	mu       sync.Mutex
	accounts *InMemoryStore[*subscription.Account]
	payments *InMemoryStore[*subscription.Payment]
}

// NewInMemorySubscriptionStore creates a new in-memory subscription repository
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		accounts: NewInMemoryStore[*subscription.Account](),
		payments: NewInMemoryStore[*subscription.Payment](),
	}
}

// Clear resets all stored data
func (s *InMemorySubscriptionStore) Clear() {
	s.accounts.Clear()
	s.payments.Clear()
}

func (s *InMemorySubscriptionStore) CreateAccount(ctx context.Context, account *subscription.Account) error {
	if account == nil {
		return ierr.NewError("account cannot be nil").
			WithHint("Account cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, err := s.getAccountByTeacher(ctx, account.TeacherID); err == nil && existing != nil {
		return ierr.NewError("subscription account already exists").
			WithHint("The teacher already has a subscription account").
			Mark(ierr.ErrAlreadyExists)
	}
	return s.accounts.Create(ctx, account.ID, account)
}

func (s *InMemorySubscriptionStore) GetAccount(ctx context.Context, id string) (*subscription.Account, error) {
	account, err := s.accounts.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("subscription account not found").
			WithHint("Subscription account not found").
			WithReportableDetails(map[string]any{"account_id": id}).
			Mark(ierr.ErrNotFound)
	}
	detached := *account
	return &detached, nil
}

func (s *InMemorySubscriptionStore) GetAccountByTeacher(ctx context.Context, teacherID string) (*subscription.Account, error) {
	return s.getAccountByTeacher(ctx, teacherID)
}

func (s *InMemorySubscriptionStore) getAccountByTeacher(ctx context.Context, teacherID string) (*subscription.Account, error) {
	filterFn := func(ctx context.Context, a *subscription.Account, _ interface{}) bool {
		return CheckTenantFilter(ctx, a.TenantID) &&
			a.TeacherID == teacherID &&
			a.Status != types.StatusDeleted
	}
	matches, err := s.accounts.List(ctx, nil, filterFn, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ierr.NewError("subscription account not found").
			WithHint("The teacher has no subscription account").
			WithReportableDetails(map[string]any{"teacher_id": teacherID}).
			Mark(ierr.ErrNotFound)
	}
	detached := *matches[0]
	return &detached, nil
}

func (s *InMemorySubscriptionStore) UpdateAccount(ctx context.Context, account *subscription.Account) error {
	if account == nil {
		return ierr.NewError("account cannot be nil").
			WithHint("Account cannot be nil").
			Mark(ierr.ErrValidation)
	}
	account.UpdatedAt = time.Now().UTC()
	return s.accounts.Update(ctx, account.ID, account)
}

func (s *InMemorySubscriptionStore) UpdateAccountStatusIf(ctx context.Context, id string, fromStatus types.SubscriptionStatus, account *subscription.Account) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}
	if current.SubscriptionStatus != fromStatus {
		return false, nil
	}

	account.UpdatedAt = time.Now().UTC()
	if err := s.accounts.Update(ctx, id, account); err != nil {
		return false, err
	}
	return true, nil
}

func (s *InMemorySubscriptionStore) ListAccountsDueBefore(ctx context.Context, now time.Time) ([]*subscription.Account, error) {
	filterFn := func(ctx context.Context, a *subscription.Account, _ interface{}) bool {
		return CheckTenantFilter(ctx, a.TenantID) &&
			a.Status != types.StatusDeleted &&
			a.SubscriptionStatus != types.SubscriptionStatusExpired &&
			!a.NextBillingDate.After(now)
	}
	sortFn := func(i, j *subscription.Account) bool {
		return i.NextBillingDate.Before(j.NextBillingDate)
	}
	return s.accounts.List(ctx, nil, filterFn, sortFn)
}

func (s *InMemorySubscriptionStore) CreatePayment(ctx context.Context, payment *subscription.Payment) error {
	if payment == nil {
		return ierr.NewError("payment cannot be nil").
			WithHint("Payment cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.payments.Create(ctx, payment.ID, payment)
}

func (s *InMemorySubscriptionStore) GetPayment(ctx context.Context, id string) (*subscription.Payment, error) {
	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("subscription payment not found").
			WithHint("Subscription payment not found").
			WithReportableDetails(map[string]any{"payment_id": id}).
			Mark(ierr.ErrNotFound)
	}
	detached := *payment
	return &detached, nil
}

func (s *InMemorySubscriptionStore) UpdatePaymentStatusIf(ctx context.Context, id string, fromStatus types.SubscriptionPaymentStatus, update subscription.PaymentUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		return false, ierr.NewError("subscription payment not found").
			WithHint("Subscription payment not found").
			WithReportableDetails(map[string]any{"payment_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if payment.PaymentStatus != fromStatus {
		return false, nil
	}

	next := *payment
	next.PaymentStatus = update.ToStatus
	if update.PaidDate != nil {
		next.PaidDate = update.PaidDate
	}
	if update.SettlementRef != nil {
		next.SettlementRef = update.SettlementRef
	}
	next.UpdatedAt = time.Now().UTC()
	next.UpdatedBy = types.GetUserID(ctx)

	if err := s.payments.Update(ctx, id, &next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *InMemorySubscriptionStore) GetOpenPayment(ctx context.Context, accountID string) (*subscription.Payment, error) {
	filterFn := func(ctx context.Context, p *subscription.Payment, _ interface{}) bool {
		return CheckTenantFilter(ctx, p.TenantID) &&
			p.AccountID == accountID &&
			p.PaymentStatus == types.SubscriptionPaymentStatusDue
	}
	sortFn := func(i, j *subscription.Payment) bool {
		return i.BillingPeriodStart.Before(j.BillingPeriodStart)
	}
	matches, err := s.payments.List(ctx, nil, filterFn, sortFn)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ierr.NewError("no open subscription payment").
			WithHint("The account has no open cycle payment").
			WithReportableDetails(map[string]any{"account_id": accountID}).
			Mark(ierr.ErrNotFound)
	}
	detached := *matches[0]
	return &detached, nil
}

func (s *InMemorySubscriptionStore) ListPayments(ctx context.Context, accountID string) ([]*subscription.Payment, error) {
	filterFn := func(ctx context.Context, p *subscription.Payment, _ interface{}) bool {
		return CheckTenantFilter(ctx, p.TenantID) && p.AccountID == accountID
	}
	sortFn := func(i, j *subscription.Payment) bool {
		return i.BillingPeriodStart.Before(j.BillingPeriodStart)
	}
	return s.payments.List(ctx, nil, filterFn, sortFn)
}

func (s *InMemorySubscriptionStore) HasPaidPayment(ctx context.Context, accountID string) (bool, error) {
	filterFn := func(ctx context.Context, p *subscription.Payment, _ interface{}) bool {
		return CheckTenantFilter(ctx, p.TenantID) &&
			p.AccountID == accountID &&
			p.PaymentStatus == types.SubscriptionPaymentStatusPaid
	}
	count, err := s.payments.Count(ctx, nil, filterFn)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
