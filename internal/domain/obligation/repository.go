package obligation

import (
	"context"
	"time"

	"github.com/tutorbill/tutorbill/internal/types"
)

// StatusUpdate describes the mutation applied together with a conditional
// status transition.
type StatusUpdate struct {
	ToStatus      types.ObligationStatus
	PaymentMode   *types.PaymentMode
	PaidDate      *time.Time
	MonthsCovered *int
	SettlementRef *string
}

// Repository defines the interface for obligation persistence.
//
// The storage layer enforces a unique index on (tenant, student, batch,
// period), and UpdateStatusIf guarantees that every PENDING row for a
// student+batch pair carries the same settlement reference, so two
// concurrent payment initiations cannot both hold in-flight attempts.
type Repository interface {
	// Create inserts a new obligation; the unique (student, batch, period)
	// constraint surfaces as ErrDuplicateObligation.
	Create(ctx context.Context, o *Obligation) error
	Get(ctx context.Context, id string) (*Obligation, error)
	List(ctx context.Context, filter *types.ObligationFilter) ([]*Obligation, error)
	Count(ctx context.Context, filter *types.ObligationFilter) (int, error)

	// UpdateStatusIf applies the update only when the row's current status
	// still equals fromStatus (compare-and-set). It reports whether the
	// transition won; a false return with a nil error means a concurrent
	// writer got there first.
	UpdateStatusIf(ctx context.Context, id string, fromStatus types.ObligationStatus, update StatusUpdate) (bool, error)

	// CountPending returns the number of in-flight online attempts for the
	// student+batch pair.
	CountPending(ctx context.Context, studentID, batchID string) (int, error)

	// ListPendingOlderThan returns Pending obligations whose transition to
	// Pending happened before the cutoff, for the abandonment sweep.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*Obligation, error)

	// ListDuePastDueDate returns Due obligations whose due date has passed,
	// for the overdue sweep.
	ListDuePastDueDate(ctx context.Context, now time.Time) ([]*Obligation, error)

	// CancelFrom soft-deletes Due obligations for the student+batch with a
	// period at or after the given month. Paid and Pending rows are never
	// touched.
	CancelFrom(ctx context.Context, studentID, batchID string, from time.Time) (int, error)
}
