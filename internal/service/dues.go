package service

import (
	"context"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// DueAggregatorService answers what a student currently owes for a batch and
// resolves bulk payment sets. Consumption is always oldest-due-date-first:
// applying money to a newer month while an older one is unpaid would mask the
// student's true delinquency.
type DueAggregatorService interface {
	GetDueSummary(ctx context.Context, studentID, batchID string) (*dto.DueSummaryResponse, error)

	// ResolveBulkSet returns the N oldest unpaid obligations whose amounts
	// sum exactly to the given amount, or PartialMonthNotSupported if no
	// oldest-first prefix matches.
	ResolveBulkSet(ctx context.Context, studentID, batchID string, amount decimal.Decimal) ([]*obligation.Obligation, error)

	// ResolveOldest returns the N oldest unpaid obligations.
	ResolveOldest(ctx context.Context, studentID, batchID string, months int) ([]*obligation.Obligation, error)
}

type dueAggregatorService struct {
	ServiceParams
}

// NewDueAggregatorService creates a new due aggregator service
func NewDueAggregatorService(params ServiceParams) DueAggregatorService {
	return &dueAggregatorService{ServiceParams: params}
}

// listUnpaid fetches Due and Overdue obligations for the pair, oldest first.
func (s *dueAggregatorService) listUnpaid(ctx context.Context, studentID, batchID string) ([]*obligation.Obligation, error) {
	filter := types.NewNoLimitObligationFilter()
	filter.StudentID = &studentID
	filter.BatchID = &batchID
	filter.Statuses = []types.ObligationStatus{
		types.ObligationStatusDue,
		types.ObligationStatusOverdue,
	}

	unpaid, err := s.ObligationRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	sort.Slice(unpaid, func(i, j int) bool {
		return unpaid[i].DueDate.Before(unpaid[j].DueDate)
	})
	return unpaid, nil
}

func (s *dueAggregatorService) GetDueSummary(ctx context.Context, studentID, batchID string) (*dto.DueSummaryResponse, error) {
	b, err := s.BatchRepo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}

	unpaid, err := s.listUnpaid(ctx, studentID, batchID)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, o := range unpaid {
		total = total.Add(o.Amount)
	}

	return &dto.DueSummaryResponse{
		TotalDue:   total,
		MonthsDue:  len(unpaid),
		MonthlyFee: b.MonthlyFee,
		DuePayments: lo.Map(unpaid, func(o *obligation.Obligation, _ int) dto.DuePayment {
			return dto.DuePayment{
				ID:      o.ID,
				Amount:  o.Amount,
				DueDate: o.DueDate,
				Period:  o.Period,
			}
		}),
	}, nil
}

func (s *dueAggregatorService) ResolveBulkSet(ctx context.Context, studentID, batchID string, amount decimal.Decimal) ([]*obligation.Obligation, error) {
	unpaid, err := s.listUnpaid(ctx, studentID, batchID)
	if err != nil {
		return nil, err
	}

	running := decimal.Zero
	for i, o := range unpaid {
		running = running.Add(o.Amount)
		if running.Equal(amount) {
			return unpaid[:i+1], nil
		}
		if running.GreaterThan(amount) {
			break
		}
	}

	return nil, ierr.NewError("amount does not cover whole months").
		WithHint("Payments must cover whole months, oldest first").
		WithReportableDetails(map[string]any{
			"student_id": studentID,
			"batch_id":   batchID,
			"amount":     amount.String(),
		}).
		Mark(ierr.ErrPartialMonthNotSupported)
}

func (s *dueAggregatorService) ResolveOldest(ctx context.Context, studentID, batchID string, months int) ([]*obligation.Obligation, error) {
	if months < 1 {
		return nil, ierr.NewError("months must be at least 1").
			WithHint("Months must be at least 1").
			Mark(ierr.ErrValidation)
	}

	unpaid, err := s.listUnpaid(ctx, studentID, batchID)
	if err != nil {
		return nil, err
	}

	if len(unpaid) < months {
		return nil, ierr.NewError("fewer unpaid months than requested").
			WithHintf("Only %d unpaid months are outstanding", len(unpaid)).
			Mark(ierr.ErrValidation)
	}

	return unpaid[:months], nil
}
