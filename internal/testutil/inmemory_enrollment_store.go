package testutil

import (
	"context"
	"time"

	"github.com/tutorbill/tutorbill/internal/domain/batch"
	"github.com/tutorbill/tutorbill/internal/domain/enrollment"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// InMemoryEnrollmentStore implements enrollment.Repository. CountByTeacher
// needs batch ownership, so the store holds a reference to the batch store.
type InMemoryEnrollmentStore struct {
	*InMemoryStore[*enrollment.Enrollment]
	batches *InMemoryBatchStore
}

// NewInMemoryEnrollmentStore creates a new in-memory enrollment repository
func NewInMemoryEnrollmentStore(batches *InMemoryBatchStore) *InMemoryEnrollmentStore {
	return &InMemoryEnrollmentStore{
		InMemoryStore: NewInMemoryStore[*enrollment.Enrollment](),
		batches:       batches,
	}
}

func (s *InMemoryEnrollmentStore) Create(ctx context.Context, e *enrollment.Enrollment) error {
	if e == nil {
		return ierr.NewError("enrollment cannot be nil").
			WithHint("Enrollment cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if existing, err := s.GetByStudentAndBatch(ctx, e.StudentID, e.BatchID); err == nil && existing != nil {
		return ierr.NewError("enrollment already exists").
			WithHint("The student is already enrolled in this batch").
			Mark(ierr.ErrAlreadyExists)
	}
	return s.InMemoryStore.Create(ctx, e.ID, e)
}

func (s *InMemoryEnrollmentStore) Get(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	e, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || e.Status == types.StatusDeleted {
		return nil, ierr.NewError("enrollment not found").
			WithHint("Enrollment not found").
			WithReportableDetails(map[string]any{"enrollment_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return e, nil
}

func (s *InMemoryEnrollmentStore) GetByStudentAndBatch(ctx context.Context, studentID, batchID string) (*enrollment.Enrollment, error) {
	filterFn := func(ctx context.Context, e *enrollment.Enrollment, _ interface{}) bool {
		return CheckTenantFilter(ctx, e.TenantID) &&
			e.StudentID == studentID &&
			e.BatchID == batchID &&
			e.Status == types.StatusPublished
	}
	matches, err := s.InMemoryStore.List(ctx, types.NewNoLimitQueryFilter(), filterFn, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ierr.NewError("enrollment not found").
			WithHint("Enrollment not found").
			Mark(ierr.ErrNotFound)
	}
	return matches[0], nil
}

func (s *InMemoryEnrollmentStore) Remove(ctx context.Context, id string) error {
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	e.Status = types.StatusDeleted
	e.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, id, e)
}

func (s *InMemoryEnrollmentStore) ListByBatch(ctx context.Context, batchID string) ([]*enrollment.Enrollment, error) {
	filterFn := func(ctx context.Context, e *enrollment.Enrollment, _ interface{}) bool {
		return CheckTenantFilter(ctx, e.TenantID) &&
			e.BatchID == batchID &&
			e.Status == types.StatusPublished
	}
	return s.InMemoryStore.List(ctx, types.NewNoLimitQueryFilter(), filterFn, s.byCreatedAt)
}

func (s *InMemoryEnrollmentStore) ListByStudent(ctx context.Context, studentID string) ([]*enrollment.Enrollment, error) {
	filterFn := func(ctx context.Context, e *enrollment.Enrollment, _ interface{}) bool {
		return CheckTenantFilter(ctx, e.TenantID) &&
			e.StudentID == studentID &&
			e.Status == types.StatusPublished
	}
	return s.InMemoryStore.List(ctx, types.NewNoLimitQueryFilter(), filterFn, s.byCreatedAt)
}

func (s *InMemoryEnrollmentStore) ListActive(ctx context.Context) ([]*enrollment.Enrollment, error) {
	filterFn := func(ctx context.Context, e *enrollment.Enrollment, _ interface{}) bool {
		return CheckTenantFilter(ctx, e.TenantID) && e.Status == types.StatusPublished
	}
	return s.InMemoryStore.List(ctx, types.NewNoLimitQueryFilter(), filterFn, s.byCreatedAt)
}

func (s *InMemoryEnrollmentStore) CountByTeacher(ctx context.Context, teacherID string) (int, error) {
	teacherBatches := make(map[string]*batch.Batch)
	batches, err := s.batches.ListByTeacher(ctx, teacherID)
	if err != nil {
		return 0, err
	}
	for _, b := range batches {
		teacherBatches[b.ID] = b
	}

	filterFn := func(ctx context.Context, e *enrollment.Enrollment, _ interface{}) bool {
		if !CheckTenantFilter(ctx, e.TenantID) || e.Status != types.StatusPublished {
			return false
		}
		_, ok := teacherBatches[e.BatchID]
		return ok
	}
	return s.InMemoryStore.Count(ctx, nil, filterFn)
}

func (s *InMemoryEnrollmentStore) byCreatedAt(i, j *enrollment.Enrollment) bool {
	return i.CreatedAt.Before(j.CreatedAt)
}
