package subscription

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// Account is the teacher-level subscription account. One exists per teacher;
// it is created on the first subscription request and never duplicated.
type Account struct {
	// Unique identifier for this account
	ID string `db:"id" json:"id"`
	// The teacher_id identifies the owning teacher; unique per tenant
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	// The plan is the tier label shown to the teacher
	Plan string `db:"plan" json:"plan"`
	// The subscription_status tracks where the account sits in the
	// Active/GracePeriod/Suspended/Expired lifecycle
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`
	// The next_billing_date is when the current cycle's payment falls due
	NextBillingDate time.Time `db:"next_billing_date" json:"next_billing_date"`
	// The grace_period_ends marks the end of the post-due unlock window (optional)
	GracePeriodEnds *time.Time `db:"grace_period_ends" json:"grace_period_ends,omitempty"`
	// The materials_locked flag is derived: true exactly when the account is
	// Suspended. It is owned by the state machine and read-only elsewhere.
	MaterialsLocked bool `db:"materials_locked" json:"materials_locked"`
	// The lock_reason explains the lock to the teacher (optional)
	LockReason *string `db:"lock_reason" json:"lock_reason,omitempty"`

	types.BaseModel
}

// Validate validates the account
func (a *Account) Validate() error {
	if a.TeacherID == "" {
		return ierr.NewError("invalid teacher id").
			WithHint("Teacher id is required").
			Mark(ierr.ErrValidation)
	}
	if err := a.SubscriptionStatus.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Subscription status is invalid").
			Mark(ierr.ErrValidation)
	}
	// materials_locked is true iff the account is Suspended
	if a.MaterialsLocked != (a.SubscriptionStatus == types.SubscriptionStatusSuspended) {
		return ierr.NewError("materials lock out of sync with status").
			WithHint("Materials lock must match the suspension state").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the account
func (a *Account) TableName() string {
	return "subscription_accounts"
}

// Payment is one billing cycle's subscription charge for an account.
type Payment struct {
	ID        string `db:"id" json:"id"`
	AccountID string `db:"account_id" json:"account_id"`
	// The amount is the tiered teacher fee computed at cycle open
	Amount decimal.Decimal `db:"amount" json:"amount"`
	// The billing period this payment covers
	BillingPeriodStart time.Time `db:"billing_period_start" json:"billing_period_start"`
	BillingPeriodEnd   time.Time `db:"billing_period_end" json:"billing_period_end"`
	// The payment_status is Due until settlement is confirmed
	PaymentStatus types.SubscriptionPaymentStatus `db:"payment_status" json:"payment_status"`
	PaidDate      *time.Time                      `db:"paid_date" json:"paid_date,omitempty"`
	// The settlement_ref recognizes replayed confirmations (optional)
	SettlementRef *string `db:"settlement_ref" json:"settlement_ref,omitempty"`

	types.BaseModel
}

// Validate validates the payment
func (p *Payment) Validate() error {
	if p.AccountID == "" {
		return ierr.NewError("invalid account id").
			WithHint("Account id is required").
			Mark(ierr.ErrValidation)
	}
	if p.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	if err := p.PaymentStatus.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Payment status is invalid").
			Mark(ierr.ErrValidation)
	}
	if p.PaymentStatus == types.SubscriptionPaymentStatusPaid && p.PaidDate == nil {
		return ierr.NewError("paid subscription payment without paid date").
			WithHint("Paid payments must carry a paid date").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the payment
func (p *Payment) TableName() string {
	return "subscription_payments"
}
