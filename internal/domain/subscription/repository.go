package subscription

import (
	"context"
	"time"

	"github.com/tutorbill/tutorbill/internal/types"
)

// PaymentUpdate describes the mutation applied together with a conditional
// payment status transition.
type PaymentUpdate struct {
	ToStatus      types.SubscriptionPaymentStatus
	PaidDate      *time.Time
	SettlementRef *string
}

// Repository defines the interface for subscription persistence.
// The storage layer enforces one account per (tenant, teacher).
type Repository interface {
	// Account operations
	CreateAccount(ctx context.Context, account *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByTeacher(ctx context.Context, teacherID string) (*Account, error)
	UpdateAccount(ctx context.Context, account *Account) error
	// UpdateAccountStatusIf transitions the account status only when the
	// current status still equals fromStatus, together with the derived
	// lock fields. Reports whether the transition won.
	UpdateAccountStatusIf(ctx context.Context, id string, fromStatus types.SubscriptionStatus, account *Account) (bool, error)
	// ListAccountsDueBefore returns accounts whose next billing date has
	// passed, for the cycle sweep.
	ListAccountsDueBefore(ctx context.Context, now time.Time) ([]*Account, error)

	// Payment operations
	CreatePayment(ctx context.Context, payment *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	// UpdatePaymentStatusIf transitions the payment status only when the
	// current status still equals fromStatus. Reports whether the transition
	// won, so two concurrent confirmations of the same cycle cannot both
	// settle it.
	UpdatePaymentStatusIf(ctx context.Context, id string, fromStatus types.SubscriptionPaymentStatus, update PaymentUpdate) (bool, error)
	// GetOpenPayment returns the account's current Due cycle payment, if any.
	GetOpenPayment(ctx context.Context, accountID string) (*Payment, error)
	ListPayments(ctx context.Context, accountID string) ([]*Payment, error)
	// HasPaidPayment reports whether any cycle was ever settled for the account.
	HasPaidPayment(ctx context.Context, accountID string) (bool, error)
}
