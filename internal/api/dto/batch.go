package dto

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// CreateBatchRequest represents a request to create a batch
type CreateBatchRequest struct {
	TeacherID    string          `json:"teacher_id" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	MonthlyFee   decimal.Decimal `json:"monthly_fee" binding:"required"`
	StudentLimit int             `json:"student_limit" binding:"required"`
}

func (r *CreateBatchRequest) Validate(ctx context.Context) error {
	if r.TeacherID == "" {
		return ierr.NewError("teacher id is required").
			WithHint("Teacher id is required").
			Mark(ierr.ErrValidation)
	}
	if r.Name == "" {
		return ierr.NewError("name is required").
			WithHint("Batch name is required").
			Mark(ierr.ErrValidation)
	}
	if r.StudentLimit < 1 {
		return ierr.NewError("student limit must be at least 1").
			WithHint("Student limit must be at least 1").
			Mark(ierr.ErrValidation)
	}
	if r.MonthlyFee.IsNegative() {
		return ierr.NewError("monthly fee must not be negative").
			WithHint("Monthly fee must not be negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToBatch converts the request to a domain batch
func (r *CreateBatchRequest) ToBatch(ctx context.Context) *batch.Batch {
	return &batch.Batch{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BATCH),
		TeacherID:    r.TeacherID,
		Name:         r.Name,
		MonthlyFee:   r.MonthlyFee,
		StudentLimit: r.StudentLimit,
		BaseModel:    types.GetDefaultBaseModel(ctx),
	}
}

// UpdateBatchRequest updates a batch's fee or limit. Existing obligations
// keep their snapshotted amounts.
type UpdateBatchRequest struct {
	Name         *string          `json:"name,omitempty"`
	MonthlyFee   *decimal.Decimal `json:"monthly_fee,omitempty"`
	StudentLimit *int             `json:"student_limit,omitempty"`
}

// BatchResponse represents a batch in API responses
type BatchResponse struct {
	ID           string          `json:"id"`
	TeacherID    string          `json:"teacher_id"`
	Name         string          `json:"name"`
	MonthlyFee   decimal.Decimal `json:"monthly_fee"`
	StudentLimit int             `json:"student_limit"`
	Status       types.Status    `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewBatchResponse converts a domain batch to an API response
func NewBatchResponse(b *batch.Batch) *BatchResponse {
	if b == nil {
		return nil
	}
	return &BatchResponse{
		ID:           b.ID,
		TeacherID:    b.TeacherID,
		Name:         b.Name,
		MonthlyFee:   b.MonthlyFee,
		StudentLimit: b.StudentLimit,
		Status:       b.Status,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

// BatchContributionQuote quotes the incremental subscription cost of a batch
type BatchContributionQuote struct {
	BatchID      string          `json:"batch_id"`
	StudentLimit int             `json:"student_limit"`
	MonthlyFee   decimal.Decimal `json:"monthly_fee"`
	Contribution decimal.Decimal `json:"contribution"`
}

// CreateEnrollmentRequest approves a student's join request for a batch
type CreateEnrollmentRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	BatchID   string `json:"batch_id" binding:"required"`
}

func (r *CreateEnrollmentRequest) Validate(ctx context.Context) error {
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
	return nil
}

// TeacherMetricsResponse aggregates billing totals across a teacher's batches
type TeacherMetricsResponse struct {
	TotalStudents        int             `json:"total_students"`
	TotalBatches         int             `json:"total_batches"`
	TotalFees            decimal.Decimal `json:"total_fees"`
	TotalContribution    decimal.Decimal `json:"total_contribution"`
	AverageFeePerStudent decimal.Decimal `json:"average_fee_per_student"`
	AverageContribution  decimal.Decimal `json:"average_contribution"`
}
