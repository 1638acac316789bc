package service

import (
	"github.com/shopspring/decimal"
	"github.com/tutorbill/tutorbill/internal/config"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
)

// FeeCalculatorService computes platform subscription fees. It is pure: the
// only inputs are the billing policy it was built with and the call
// arguments.
type FeeCalculatorService interface {
	// BatchContribution quotes what one batch costs the teacher per month:
	// the greater of the seat floor and the revenue share of the batch fee.
	BatchContribution(studentLimit int, batchFee decimal.Decimal) (decimal.Decimal, error)

	// TeacherFee computes the teacher-level tiered base fee for the given
	// total enrolled student count.
	TeacherFee(totalStudents int) (decimal.Decimal, error)
}

type feeCalculatorService struct {
	billing config.BillingConfig
}

// NewFeeCalculatorService creates a fee calculator over the given billing policy.
func NewFeeCalculatorService(billing config.BillingConfig) FeeCalculatorService {
	return &feeCalculatorService{billing: billing}
}

func (s *feeCalculatorService) BatchContribution(studentLimit int, batchFee decimal.Decimal) (decimal.Decimal, error) {
	// Rejecting zero inputs matters: silently producing a fee of 0 would let
	// a teacher create a batch with no subscription obligation.
	if studentLimit <= 0 {
		return decimal.Zero, ierr.NewError("student limit must be positive").
			WithHint("Student limit must be at least 1").
			WithReportableDetails(map[string]any{"student_limit": studentLimit}).
			Mark(ierr.ErrInvalidFeeInput)
	}
	if !batchFee.IsPositive() {
		return decimal.Zero, ierr.NewError("batch fee must be positive").
			WithHint("Batch fee must be greater than 0").
			WithReportableDetails(map[string]any{"batch_fee": batchFee.String()}).
			Mark(ierr.ErrInvalidFeeInput)
	}

	seatFloor := s.billing.PerStudentFloorAmount().Mul(decimal.NewFromInt(int64(studentLimit)))
	revenueShare := batchFee.Mul(s.billing.RevenueShareRateAmount())

	if revenueShare.GreaterThan(seatFloor) {
		return revenueShare, nil
	}
	return seatFloor, nil
}

func (s *feeCalculatorService) TeacherFee(totalStudents int) (decimal.Decimal, error) {
	if totalStudents < 0 {
		return decimal.Zero, ierr.NewError("student count must not be negative").
			WithHint("Student count must not be negative").
			WithReportableDetails(map[string]any{"total_students": totalStudents}).
			Mark(ierr.ErrInvalidFeeInput)
	}

	fee := s.billing.BaseFeeAmount()
	if totalStudents > s.billing.IncludedStudents {
		extra := decimal.NewFromInt(int64(totalStudents - s.billing.IncludedStudents))
		fee = fee.Add(extra.Mul(s.billing.PerStudentFloorAmount()))
	}
	return fee, nil
}
