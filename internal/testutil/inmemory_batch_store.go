package testutil

import (
	"context"
	"time"

	"github.com/tutorbill/tutorbill/internal/domain/batch"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// InMemoryBatchStore implements batch.Repository
type InMemoryBatchStore struct {
	*InMemoryStore[*batch.Batch]
}

// NewInMemoryBatchStore creates a new in-memory batch repository
func NewInMemoryBatchStore() *InMemoryBatchStore {
	return &InMemoryBatchStore{
		InMemoryStore: NewInMemoryStore[*batch.Batch](),
	}
}

func (s *InMemoryBatchStore) Create(ctx context.Context, b *batch.Batch) error {
	if b == nil {
		return ierr.NewError("batch cannot be nil").
			WithHint("Batch cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, b.ID, b)
}

func (s *InMemoryBatchStore) Get(ctx context.Context, id string) (*batch.Batch, error) {
	b, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("batch not found").
			WithHint("Batch not found").
			WithReportableDetails(map[string]any{"batch_id": id}).
			Mark(ierr.ErrNotFound)
	}
	return b, nil
}

func (s *InMemoryBatchStore) Update(ctx context.Context, b *batch.Batch) error {
	if b == nil {
		return ierr.NewError("batch cannot be nil").
			WithHint("Batch cannot be nil").
			Mark(ierr.ErrValidation)
	}
	b.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, b.ID, b)
}

func (s *InMemoryBatchStore) Archive(ctx context.Context, id string) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	b.Status = types.StatusArchived
	b.UpdatedAt = time.Now().UTC()
	return s.InMemoryStore.Update(ctx, id, b)
}

func (s *InMemoryBatchStore) List(ctx context.Context, filter *types.QueryFilter) ([]*batch.Batch, error) {
	filterFn := func(ctx context.Context, b *batch.Batch, _ interface{}) bool {
		return CheckTenantFilter(ctx, b.TenantID) && b.Status != types.StatusDeleted
	}
	sortFn := func(i, j *batch.Batch) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}
	return s.InMemoryStore.List(ctx, filter, filterFn, sortFn)
}

func (s *InMemoryBatchStore) ListByTeacher(ctx context.Context, teacherID string) ([]*batch.Batch, error) {
	filterFn := func(ctx context.Context, b *batch.Batch, _ interface{}) bool {
		return CheckTenantFilter(ctx, b.TenantID) &&
			b.TeacherID == teacherID &&
			b.Status != types.StatusDeleted
	}
	sortFn := func(i, j *batch.Batch) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	}
	return s.InMemoryStore.List(ctx, types.NewNoLimitQueryFilter(), filterFn, sortFn)
}
