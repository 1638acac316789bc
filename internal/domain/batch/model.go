package batch

import (
	"github.com/shopspring/decimal"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// Batch represents one teacher-owned group of students billed monthly
type Batch struct {
	// Unique identifier for this batch
	ID string `db:"id" json:"id"`
	// The teacher_id identifies the owning teacher
	TeacherID string `db:"teacher_id" json:"teacher_id"`
	// Display name shown to students
	Name string `db:"name" json:"name"`
	// The monthly_fee is what each enrolled student owes per billing month.
	// Obligations snapshot this value at creation time; later edits never
	// retouch existing obligations.
	MonthlyFee decimal.Decimal `db:"monthly_fee" json:"monthly_fee"`
	// The student_limit caps enrollment and drives the subscription
	// contribution quote
	StudentLimit int `db:"student_limit" json:"student_limit"`

	types.BaseModel
}

// Validate validates the batch
func (b *Batch) Validate() error {
	if b.TeacherID == "" {
		return ierr.NewError("invalid teacher id").
			WithHint("Teacher id is required").
			Mark(ierr.ErrValidation)
	}
	if b.Name == "" {
		return ierr.NewError("invalid batch name").
			WithHint("Batch name is required").
			Mark(ierr.ErrValidation)
	}
	if b.MonthlyFee.IsNegative() {
		return ierr.NewError("invalid monthly fee").
			WithHint("Monthly fee must not be negative").
			Mark(ierr.ErrValidation)
	}
	if b.StudentLimit < 1 {
		return ierr.NewError("invalid student limit").
			WithHint("Student limit must be at least 1").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsOwnedBy reports whether the given teacher owns this batch
func (b *Batch) IsOwnedBy(teacherID string) bool {
	return b.TeacherID == teacherID
}

// TableName returns the table name for the batch
func (b *Batch) TableName() string {
	return "batches"
}
