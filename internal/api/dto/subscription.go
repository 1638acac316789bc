package dto

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tutorbill/tutorbill/internal/domain/subscription"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// CreateSubscriptionRequest opens a teacher's subscription account
type CreateSubscriptionRequest struct {
	TeacherID string `json:"teacher_id" binding:"required"`
	Plan      string `json:"plan"`
}

func (r *CreateSubscriptionRequest) Validate(ctx context.Context) error {
	if r.TeacherID == "" {
		return ierr.NewError("teacher id is required").
			WithHint("Teacher id is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ConfirmSubscriptionPaymentRequest confirms a cycle payment via settlement
type ConfirmSubscriptionPaymentRequest struct {
	PaymentID     string `json:"payment_id" binding:"required"`
	SettlementRef string `json:"settlement_reference" binding:"required"`
}

func (r *ConfirmSubscriptionPaymentRequest) Validate(ctx context.Context) error {
	if r.PaymentID == "" {
		return ierr.NewError("payment id is required").
			WithHint("Payment id is required").
			Mark(ierr.ErrValidation)
	}
	if r.SettlementRef == "" {
		return ierr.NewError("settlement reference is required").
			WithHint("Settlement reference is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SubscriptionAccountResponse represents a subscription account
type SubscriptionAccountResponse struct {
	ID                 string                   `json:"id"`
	TeacherID          string                   `json:"teacher_id"`
	Plan               string                   `json:"plan"`
	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status"`
	NextBillingDate    time.Time                `json:"next_billing_date"`
	GracePeriodEnds    *time.Time               `json:"grace_period_ends,omitempty"`
	MaterialsLocked    bool                     `json:"materials_locked"`
	LockReason         *string                  `json:"lock_reason,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	UpdatedAt          time.Time                `json:"updated_at"`
}

// NewSubscriptionAccountResponse converts a domain account to an API response
func NewSubscriptionAccountResponse(a *subscription.Account) *SubscriptionAccountResponse {
	if a == nil {
		return nil
	}
	return &SubscriptionAccountResponse{
		ID:                 a.ID,
		TeacherID:          a.TeacherID,
		Plan:               a.Plan,
		SubscriptionStatus: a.SubscriptionStatus,
		NextBillingDate:    a.NextBillingDate,
		GracePeriodEnds:    a.GracePeriodEnds,
		MaterialsLocked:    a.MaterialsLocked,
		LockReason:         a.LockReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

// SubscriptionStatusResponse is the materials-gating contract: the
// materials-serving collaborator re-checks materials_locked on every read.
type SubscriptionStatusResponse struct {
	SubscriptionActive bool             `json:"subscription_active"`
	MaterialsLocked    bool             `json:"materials_locked"`
	LockReason         *string          `json:"lock_reason,omitempty"`
	GracePeriodEnds    *time.Time       `json:"grace_period_ends,omitempty"`
	NextPaymentDue     *time.Time       `json:"next_payment_due,omitempty"`
	AmountDue          *decimal.Decimal `json:"amount_due,omitempty"`
}

// SubscriptionPaymentResponse represents one billing cycle's payment
type SubscriptionPaymentResponse struct {
	ID                 string                          `json:"id"`
	AccountID          string                          `json:"account_id"`
	Amount             decimal.Decimal                 `json:"amount"`
	BillingPeriodStart time.Time                       `json:"billing_period_start"`
	BillingPeriodEnd   time.Time                       `json:"billing_period_end"`
	PaymentStatus      types.SubscriptionPaymentStatus `json:"payment_status"`
	PaidDate           *time.Time                      `json:"paid_date,omitempty"`
}

// NewSubscriptionPaymentResponse converts a domain payment to an API response
func NewSubscriptionPaymentResponse(p *subscription.Payment) *SubscriptionPaymentResponse {
	if p == nil {
		return nil
	}
	return &SubscriptionPaymentResponse{
		ID:                 p.ID,
		AccountID:          p.AccountID,
		Amount:             p.Amount,
		BillingPeriodStart: p.BillingPeriodStart,
		BillingPeriodEnd:   p.BillingPeriodEnd,
		PaymentStatus:      p.PaymentStatus,
		PaidDate:           p.PaidDate,
	}
}
