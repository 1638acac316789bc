package obligation

import (
	"time"

	"github.com/shopspring/decimal"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// Obligation is the ledger row: one student's liability for one batch for one
// billing month. At most one obligation exists per (student, batch, period).
type Obligation struct {
	// Unique identifier for this obligation
	ID string `db:"id" json:"id"`
	// The student_id identifies who owes this amount
	StudentID string `db:"student_id" json:"student_id"`
	// The batch_id identifies which batch the liability is for
	BatchID string `db:"batch_id" json:"batch_id"`
	// The period is the billing month, normalized to the first of the month UTC
	Period time.Time `db:"period" json:"period"`
	// The amount is a snapshot of the batch's monthly fee at creation time.
	// Later fee changes never retroactively alter this value.
	Amount decimal.Decimal `db:"amount" json:"amount"`
	// The obligation_status records where the row sits in the payment lifecycle
	ObligationStatus types.ObligationStatus `db:"obligation_status" json:"obligation_status"`
	// The payment_mode records how the obligation was or is being settled
	PaymentMode types.PaymentMode `db:"payment_mode" json:"payment_mode"`
	// The due_date is when the obligation becomes Overdue if unpaid
	DueDate time.Time `db:"due_date" json:"due_date"`
	// The paid_date is set exactly when the obligation transitions to Paid (optional)
	PaidDate *time.Time `db:"paid_date" json:"paid_date,omitempty"`
	// The months_covered counter records how many obligations the settling
	// bulk payment covered, 1 for a single-month payment
	MonthsCovered int `db:"months_covered" json:"months_covered"`
	// The settlement_ref is the external settlement reference that paid this
	// obligation; used to recognize replayed webhook deliveries (optional)
	SettlementRef *string `db:"settlement_ref" json:"settlement_ref,omitempty"`

	types.BaseModel
}

// Validate validates the obligation
func (o *Obligation) Validate() error {
	if o.StudentID == "" {
		return ierr.NewError("invalid student id").
			WithHint("Student id is required").
			Mark(ierr.ErrValidation)
	}
	if o.BatchID == "" {
		return ierr.NewError("invalid batch id").
			WithHint("Batch id is required").
			Mark(ierr.ErrValidation)
	}
	if o.Period.IsZero() {
		return ierr.NewError("invalid billing period").
			WithHint("Billing period is required").
			Mark(ierr.ErrValidation)
	}
	if !o.Period.Equal(types.BillingPeriodStart(o.Period)) {
		return ierr.NewError("billing period not normalized").
			WithHint("Billing period must be the first of a month").
			Mark(ierr.ErrValidation)
	}
	if o.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must not be negative").
			Mark(ierr.ErrValidation)
	}
	if o.MonthsCovered < 1 {
		return ierr.NewError("invalid months covered").
			WithHint("Months covered must be at least 1").
			Mark(ierr.ErrValidation)
	}
	if err := o.ObligationStatus.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Obligation status is invalid").
			Mark(ierr.ErrValidation)
	}
	if err := o.PaymentMode.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Payment mode is invalid").
			Mark(ierr.ErrValidation)
	}
	// Paid requires a paid date and a concrete mode
	if o.ObligationStatus == types.ObligationStatusPaid {
		if o.PaidDate == nil {
			return ierr.NewError("paid obligation without paid date").
				WithHint("Paid obligations must carry a paid date").
				Mark(ierr.ErrValidation)
		}
		if o.PaymentMode == types.PaymentModeUnset {
			return ierr.NewError("paid obligation without payment mode").
				WithHint("Paid obligations must carry a payment mode").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// TableName returns the table name for the obligation
func (o *Obligation) TableName() string {
	return "payment_obligations"
}
