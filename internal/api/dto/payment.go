package dto

import (
	"context"

	"github.com/shopspring/decimal"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
)

// InitiatePaymentRequest starts an online payment for a student's unpaid
// months in a batch. Exactly one of Months or Amount selects the bulk set:
// Months takes the N oldest unpaid obligations; Amount resolves the oldest
// prefix whose amounts sum exactly to it.
type InitiatePaymentRequest struct {
	StudentID string           `json:"student_id" binding:"required"`
	BatchID   string           `json:"batch_id" binding:"required"`
	Months    int              `json:"months,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

func (r *InitiatePaymentRequest) Validate(ctx context.Context) error {
	if r.StudentID == "" {
		return ierr.NewError("student id is required").
			WithHint("Student id is required").
			Mark(ierr.ErrValidation)
	}
	if r.BatchID == "" {
		return ierr.NewError("batch id is required").
			WithHint("Batch id is required").
			Mark(ierr.ErrValidation)
	}
	if r.Months <= 0 && r.Amount == nil {
		return ierr.NewError("months or amount is required").
			WithHint("Specify how many months to pay or the exact amount").
			Mark(ierr.ErrValidation)
	}
	if r.Months > 0 && r.Amount != nil {
		return ierr.NewError("months and amount are mutually exclusive").
			WithHint("Specify either months or amount, not both").
			Mark(ierr.ErrValidation)
	}
	if r.Amount != nil && !r.Amount.IsPositive() {
		return ierr.NewError("amount must be positive").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InitiatePaymentResponse carries the provider redirect for an initiated payment
type InitiatePaymentResponse struct {
	SettlementRef string          `json:"settlement_reference"`
	RedirectURL   string          `json:"redirect_url"`
	Amount        decimal.Decimal `json:"amount"`
	ObligationIDs []string        `json:"obligation_ids"`
}

// SettlementWebhookRequest is the settlement provider's confirmation callback.
// Deliveries may be replayed; handling must be idempotent.
type SettlementWebhookRequest struct {
	SettlementRef string   `json:"settlement_reference" binding:"required"`
	ObligationIDs []string `json:"obligation_ids" binding:"required"`
	// Event is "settled" on success; anything else releases the obligations
	// back to Due.
	Event string `json:"event" binding:"required"`
}

func (r *SettlementWebhookRequest) Validate(ctx context.Context) error {
	if r.SettlementRef == "" {
		return ierr.NewError("settlement reference is required").
			WithHint("Settlement reference is required").
			Mark(ierr.ErrValidation)
	}
	if len(r.ObligationIDs) == 0 {
		return ierr.NewError("obligation ids are required").
			WithHint("At least one obligation id is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// SettlementWebhookResponse reports per-obligation outcomes of a callback
type SettlementWebhookResponse struct {
	Settled  []string `json:"settled"`
	Replayed []string `json:"replayed"`
	Released []string `json:"released,omitempty"`
}

// MarkCashRequest marks an obligation settled in cash by the batch's teacher
type MarkCashRequest struct {
	TeacherID string `json:"teacher_id" binding:"required"`
}

func (r *MarkCashRequest) Validate(ctx context.Context) error {
	if r.TeacherID == "" {
		return ierr.NewError("teacher id is required").
			WithHint("Teacher id is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
