package batch

import (
	"context"

	"github.com/tutorbill/tutorbill/internal/types"
)

// Repository defines the interface for batch persistence
type Repository interface {
	Create(ctx context.Context, batch *Batch) error
	Get(ctx context.Context, id string) (*Batch, error)
	Update(ctx context.Context, batch *Batch) error
	// Archive soft-archives the batch; batches with obligations are never
	// hard-deleted.
	Archive(ctx context.Context, id string) error
	List(ctx context.Context, filter *types.QueryFilter) ([]*Batch, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]*Batch, error)
}
