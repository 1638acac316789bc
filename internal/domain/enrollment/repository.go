package enrollment

import (
	"context"
)

// Repository defines the interface for enrollment persistence.
// The storage layer enforces (student_id, batch_id) uniqueness.
type Repository interface {
	Create(ctx context.Context, enrollment *Enrollment) error
	Get(ctx context.Context, id string) (*Enrollment, error)
	GetByStudentAndBatch(ctx context.Context, studentID, batchID string) (*Enrollment, error)
	// Remove soft-deletes the enrollment; the caller cancels future obligations.
	Remove(ctx context.Context, id string) error
	ListByBatch(ctx context.Context, batchID string) ([]*Enrollment, error)
	ListByStudent(ctx context.Context, studentID string) ([]*Enrollment, error)
	// ListActive returns every published enrollment for the tenant, used by
	// the monthly obligation generation sweep.
	ListActive(ctx context.Context) ([]*Enrollment, error)
	// CountByTeacher returns the number of active enrollments across all of a
	// teacher's batches, the input to the tiered subscription fee.
	CountByTeacher(ctx context.Context, teacherID string) (int, error)
}
