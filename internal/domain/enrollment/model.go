package enrollment

import (
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// Enrollment represents an approved (student, batch) membership. A student
// cannot be enrolled twice in the same batch.
type Enrollment struct {
	ID        string `db:"id" json:"id"`
	StudentID string `db:"student_id" json:"student_id"`
	BatchID   string `db:"batch_id" json:"batch_id"`

	types.BaseModel
}

// Validate validates the enrollment
func (e *Enrollment) Validate() error {
	if e.StudentID == "" {
		return ierr.NewError("invalid student id").
			WithHint("Student id is required").
			Mark(ierr.ErrValidation)
	}
	if e.BatchID == "" {
		return ierr.NewError("invalid batch id").
			WithHint("Batch id is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the enrollment
func (e *Enrollment) TableName() string {
	return "enrollments"
}
