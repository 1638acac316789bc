package types

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// ObligationStatus represents the status of a payment obligation
type ObligationStatus string

const (
	ObligationStatusDue     ObligationStatus = "DUE"
	ObligationStatusPending ObligationStatus = "PENDING"
	ObligationStatusPaid    ObligationStatus = "PAID"
	ObligationStatusOverdue ObligationStatus = "OVERDUE"
)

func (s ObligationStatus) String() string {
	return string(s)
}

func (s ObligationStatus) Validate() error {
	allowed := []ObligationStatus{
		ObligationStatusDue,
		ObligationStatusPending,
		ObligationStatusPaid,
		ObligationStatusOverdue,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid obligation status: %s", s)
	}
	return nil
}

// IsPayable reports whether an obligation in this status can still be settled.
// Overdue is a reporting state, not a terminal one.
func (s ObligationStatus) IsPayable() bool {
	return s == ObligationStatusDue || s == ObligationStatusOverdue
}

// PaymentMode represents how an obligation was (or is being) settled
type PaymentMode string

const (
	PaymentModeOnline PaymentMode = "ONLINE"
	PaymentModeCash   PaymentMode = "CASH"
	PaymentModeUnset  PaymentMode = "UNSET"
)

func (m PaymentMode) String() string {
	return string(m)
}

func (m PaymentMode) Validate() error {
	allowed := []PaymentMode{
		PaymentModeOnline,
		PaymentModeCash,
		PaymentModeUnset,
	}
	if !lo.Contains(allowed, m) {
		return fmt.Errorf("invalid payment mode: %s", m)
	}
	return nil
}

// ObligationFilter represents the filter for listing obligations
type ObligationFilter struct {
	*QueryFilter

	ObligationIDs []string           `form:"obligation_ids"`
	StudentID     *string            `form:"student_id"`
	BatchID       *string            `form:"batch_id"`
	Statuses      []ObligationStatus `form:"statuses"`
	PeriodFrom    *time.Time         `form:"period_from"`
	PeriodTo      *time.Time         `form:"period_to"`
	DueBefore     *time.Time         `form:"due_before"`
}

// NewNoLimitObligationFilter creates a new obligation filter with no limit
func NewNoLimitObligationFilter() *ObligationFilter {
	return &ObligationFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the obligation filter
func (f *ObligationFilter) Validate() error {
	if f == nil {
		return nil
	}

	if err := f.QueryFilter.Validate(); err != nil {
		return err
	}

	for _, s := range f.Statuses {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	return nil
}
