package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// InMemoryObligationStore implements obligation.Repository with the same
// uniqueness and compare-and-set semantics the real storage layer enforces:
// one obligation per (student, batch, period), a single settlement reference
// across a pair's Pending rows, and atomic conditional status transitions.
// Point reads return detached copies, matching the row hydration of the real
// storage layer.
type InMemoryObligationStore struct {
	*InMemoryStore[*obligation.Obligation]
	mu        sync.Mutex
	pendingAt map[string]time.Time
}

// NewInMemoryObligationStore creates a new in-memory obligation repository
func NewInMemoryObligationStore() *InMemoryObligationStore {
	return &InMemoryObligationStore{
		InMemoryStore: NewInMemoryStore[*obligation.Obligation](),
		pendingAt:     make(map[string]time.Time),
	}
}

// Clear resets all stored data
func (s *InMemoryObligationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InMemoryStore.Clear()
	s.pendingAt = make(map[string]time.Time)
}

func (s *InMemoryObligationStore) Create(ctx context.Context, o *obligation.Obligation) error {
	if o == nil {
		return ierr.NewError("obligation cannot be nil").
			WithHint("Obligation cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.listAll(ctx)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.StudentID == o.StudentID && e.BatchID == o.BatchID && e.Period.Equal(o.Period) {
			return ierr.NewError("obligation already exists for period").
				WithHint("An obligation already exists for this student, batch and month").
				WithReportableDetails(map[string]any{
					"student_id": o.StudentID,
					"batch_id":   o.BatchID,
					"period":     o.Period,
				}).
				Mark(ierr.ErrDuplicateObligation)
		}
	}

	return s.InMemoryStore.Create(ctx, o.ID, o)
}

func (s *InMemoryObligationStore) Get(ctx context.Context, id string) (*obligation.Obligation, error) {
	o, err := s.InMemoryStore.Get(ctx, id)
	if err != nil || o.Status == types.StatusDeleted {
		return nil, ierr.NewError("obligation not found").
			WithHint("Obligation not found").
			WithReportableDetails(map[string]any{"obligation_id": id}).
			Mark(ierr.ErrNotFound)
	}
	detached := *o
	return &detached, nil
}

func (s *InMemoryObligationStore) List(ctx context.Context, filter *types.ObligationFilter) ([]*obligation.Obligation, error) {
	return s.InMemoryStore.List(ctx, filter, s.matchesFilter, s.byPeriod)
}

func (s *InMemoryObligationStore) Count(ctx context.Context, filter *types.ObligationFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, s.matchesFilter)
}

func (s *InMemoryObligationStore) UpdateStatusIf(ctx context.Context, id string, fromStatus types.ObligationStatus, update obligation.StatusUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if o.ObligationStatus != fromStatus {
		return false, nil
	}

	// One in-flight attempt per student+batch: every Pending row for the
	// pair must carry the same settlement reference. A transition that would
	// introduce a second reference loses.
	if update.ToStatus == types.ObligationStatusPending {
		held, err := s.pendingRefsFor(ctx, o.StudentID, o.BatchID)
		if err != nil {
			return false, err
		}
		for _, ref := range held {
			if update.SettlementRef == nil || ref != *update.SettlementRef {
				return false, nil
			}
		}
	}

	now := time.Now().UTC()
	o.ObligationStatus = update.ToStatus
	if update.PaymentMode != nil {
		o.PaymentMode = *update.PaymentMode
	}
	if update.PaidDate != nil {
		o.PaidDate = update.PaidDate
	}
	if update.MonthsCovered != nil {
		o.MonthsCovered = *update.MonthsCovered
	}
	if update.SettlementRef != nil {
		o.SettlementRef = update.SettlementRef
	}
	o.UpdatedAt = now
	o.UpdatedBy = types.GetUserID(ctx)

	if update.ToStatus == types.ObligationStatusPending {
		s.pendingAt[id] = now
	} else {
		delete(s.pendingAt, id)
	}

	if err := s.InMemoryStore.Update(ctx, id, o); err != nil {
		return false, err
	}
	return true, nil
}

func (s *InMemoryObligationStore) CountPending(ctx context.Context, studentID, batchID string) (int, error) {
	filterFn := func(ctx context.Context, o *obligation.Obligation, _ interface{}) bool {
		return CheckTenantFilter(ctx, o.TenantID) &&
			o.Status != types.StatusDeleted &&
			o.StudentID == studentID &&
			o.BatchID == batchID &&
			o.ObligationStatus == types.ObligationStatusPending
	}
	return s.InMemoryStore.Count(ctx, nil, filterFn)
}

// pendingRefsFor collects the settlement references held by the pair's
// current Pending rows.
func (s *InMemoryObligationStore) pendingRefsFor(ctx context.Context, studentID, batchID string) ([]string, error) {
	filterFn := func(ctx context.Context, o *obligation.Obligation, _ interface{}) bool {
		return CheckTenantFilter(ctx, o.TenantID) &&
			o.Status != types.StatusDeleted &&
			o.StudentID == studentID &&
			o.BatchID == batchID &&
			o.ObligationStatus == types.ObligationStatusPending
	}
	rows, err := s.InMemoryStore.List(ctx, types.NewNoLimitObligationFilter(), filterFn, nil)
	if err != nil {
		return nil, err
	}
	refs := make([]string, 0, len(rows))
	for _, o := range rows {
		if o.SettlementRef != nil {
			refs = append(refs, *o.SettlementRef)
		}
	}
	return refs, nil
}

func (s *InMemoryObligationStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*obligation.Obligation, error) {
	s.mu.Lock()
	pendingAt := make(map[string]time.Time, len(s.pendingAt))
	for k, v := range s.pendingAt {
		pendingAt[k] = v
	}
	s.mu.Unlock()

	filterFn := func(ctx context.Context, o *obligation.Obligation, _ interface{}) bool {
		if !CheckTenantFilter(ctx, o.TenantID) ||
			o.Status == types.StatusDeleted ||
			o.ObligationStatus != types.ObligationStatusPending {
			return false
		}
		since, ok := pendingAt[o.ID]
		return ok && since.Before(cutoff)
	}
	return s.InMemoryStore.List(ctx, types.NewNoLimitObligationFilter(), filterFn, s.byPeriod)
}

func (s *InMemoryObligationStore) ListDuePastDueDate(ctx context.Context, now time.Time) ([]*obligation.Obligation, error) {
	filterFn := func(ctx context.Context, o *obligation.Obligation, _ interface{}) bool {
		return CheckTenantFilter(ctx, o.TenantID) &&
			o.Status != types.StatusDeleted &&
			o.ObligationStatus == types.ObligationStatusDue &&
			o.DueDate.Before(now)
	}
	return s.InMemoryStore.List(ctx, types.NewNoLimitObligationFilter(), filterFn, s.byPeriod)
}

func (s *InMemoryObligationStore) CancelFrom(ctx context.Context, studentID, batchID string, from time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listAll(ctx)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, o := range all {
		if o.StudentID != studentID || o.BatchID != batchID {
			continue
		}
		if o.ObligationStatus != types.ObligationStatusDue || o.Period.Before(from) {
			continue
		}
		o.Status = types.StatusDeleted
		o.UpdatedAt = time.Now().UTC()
		if err := s.InMemoryStore.Update(ctx, o.ID, o); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// SetPendingSince backdates a Pending transition for timeout tests.
func (s *InMemoryObligationStore) SetPendingSince(id string, since time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAt[id] = since
}

func (s *InMemoryObligationStore) listAll(ctx context.Context) ([]*obligation.Obligation, error) {
	filterFn := func(ctx context.Context, o *obligation.Obligation, _ interface{}) bool {
		return CheckTenantFilter(ctx, o.TenantID) && o.Status != types.StatusDeleted
	}
	return s.InMemoryStore.List(ctx, types.NewNoLimitObligationFilter(), filterFn, nil)
}

func (s *InMemoryObligationStore) matchesFilter(ctx context.Context, o *obligation.Obligation, filter interface{}) bool {
	if !CheckTenantFilter(ctx, o.TenantID) || o.Status == types.StatusDeleted {
		return false
	}

	f, ok := filter.(*types.ObligationFilter)
	if !ok || f == nil {
		return true
	}

	if len(f.ObligationIDs) > 0 && !lo.Contains(f.ObligationIDs, o.ID) {
		return false
	}
	if f.StudentID != nil && o.StudentID != *f.StudentID {
		return false
	}
	if f.BatchID != nil && o.BatchID != *f.BatchID {
		return false
	}
	if len(f.Statuses) > 0 && !lo.Contains(f.Statuses, o.ObligationStatus) {
		return false
	}
	if f.PeriodFrom != nil && o.Period.Before(*f.PeriodFrom) {
		return false
	}
	if f.PeriodTo != nil && o.Period.After(*f.PeriodTo) {
		return false
	}
	if f.DueBefore != nil && !o.DueDate.Before(*f.DueBefore) {
		return false
	}
	return true
}

func (s *InMemoryObligationStore) byPeriod(i, j *obligation.Obligation) bool {
	if !i.Period.Equal(j.Period) {
		return i.Period.Before(j.Period)
	}
	return i.DueDate.Before(j.DueDate)
}
