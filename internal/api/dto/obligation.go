package dto

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// CreateObligationRequest represents a request to create a monthly obligation
type CreateObligationRequest struct {
	StudentID string    `json:"student_id" binding:"required"`
	BatchID   string    `json:"batch_id" binding:"required"`
	Period    time.Time `json:"period" binding:"required"`
}

func (r *CreateObligationRequest) Validate(ctx context.Context) error {
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
	if r.Period.IsZero() {
		return ierr.NewError("period is required").
			WithHint("Billing period is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ObligationResponse represents an obligation in API responses
type ObligationResponse struct {
	ID               string                 `json:"id"`
	StudentID        string                 `json:"student_id"`
	BatchID          string                 `json:"batch_id"`
	Period           time.Time              `json:"period"`
	Amount           decimal.Decimal        `json:"amount"`
	ObligationStatus types.ObligationStatus `json:"obligation_status"`
	PaymentMode      types.PaymentMode      `json:"payment_mode"`
	DueDate          time.Time              `json:"due_date"`
	PaidDate         *time.Time             `json:"paid_date,omitempty"`
	SettlementRef    *string                `json:"settlement_ref,omitempty"`
	MonthsCovered    int                    `json:"months_covered"`
	TenantID         string                 `json:"tenant_id"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// NewObligationResponse converts a domain obligation to an API response
func NewObligationResponse(o *obligation.Obligation) *ObligationResponse {
	if o == nil {
		return nil
	}
	return &ObligationResponse{
		ID:               o.ID,
		StudentID:        o.StudentID,
		BatchID:          o.BatchID,
		Period:           o.Period,
		Amount:           o.Amount,
		ObligationStatus: o.ObligationStatus,
		PaymentMode:      o.PaymentMode,
		DueDate:          o.DueDate,
		PaidDate:         o.PaidDate,
		SettlementRef:    o.SettlementRef,
		MonthsCovered:    o.MonthsCovered,
		TenantID:         o.TenantID,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

// DuePayment is one unpaid month in a due summary, oldest first
type DuePayment struct {
	ID      string          `json:"id"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date"`
	Period  time.Time       `json:"period"`
}

// DueSummaryResponse answers "what does this student owe for this batch"
type DueSummaryResponse struct {
	TotalDue    decimal.Decimal `json:"total_due"`
	MonthsDue   int             `json:"months_due"`
	MonthlyFee  decimal.Decimal `json:"monthly_fee"`
	DuePayments []DuePayment    `json:"due_payments"`
}
