package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// LedgerService owns payment obligation rows and their status transitions.
// No other component mutates obligation status; everything goes through the
// conditional updates here so concurrent settlement attempts cannot both win.
type LedgerService interface {
	CreateObligation(ctx context.Context, req dto.CreateObligationRequest) (*dto.ObligationResponse, error)
	GetObligation(ctx context.Context, id string) (*dto.ObligationResponse, error)

	// MarkCash settles a Due or Overdue obligation in cash, attested by the
	// batch's teacher. Cash has no Pending state.
	MarkCash(ctx context.Context, obligationID, teacherID string) (*dto.ObligationResponse, error)

	// SettleOnline transitions a Pending obligation to Paid on settlement
	// confirmation. Only the reference that initiated the attempt may settle
	// it. A replayed confirmation with the same settlement reference is a
	// no-op; any other non-Pending state is InvalidTransition.
	SettleOnline(ctx context.Context, obligationID, settlementRef string, monthsCovered int) (*dto.ObligationResponse, bool, error)

	// ReleaseOnline returns a Pending obligation to Due after a failed or
	// expired settlement attempt.
	ReleaseOnline(ctx context.Context, obligationID, settlementRef string) error

	// RecomputeOverdue sweeps Due obligations past their due date to Overdue.
	// Advisory only: Overdue rows remain payable.
	RecomputeOverdue(ctx context.Context, now time.Time) (int, error)

	// ExpirePendingPayments returns abandoned Pending attempts to Due so a
	// student is never permanently blocked by a stale attempt.
	ExpirePendingPayments(ctx context.Context, now time.Time) (int, error)

	// CancelFutureObligations voids unpaid obligations from the given period
	// onward when an enrollment is removed. Past months stay owed.
	CancelFutureObligations(ctx context.Context, studentID, batchID string, from time.Time) (int, error)

	// GenerateMonthlyObligations accrues one obligation per active enrollment
	// for the given period. Already-created months are skipped.
	GenerateMonthlyObligations(ctx context.Context, period time.Time) (int, error)
}

type ledgerService struct {
	ServiceParams
}

// NewLedgerService creates a new ledger service
func NewLedgerService(params ServiceParams) LedgerService {
	return &ledgerService{ServiceParams: params}
}

func (s *ledgerService) CreateObligation(ctx context.Context, req dto.CreateObligationRequest) (*dto.ObligationResponse, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	b, err := s.BatchRepo.Get(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if b.Status == types.StatusArchived {
		return nil, ierr.NewError("batch is archived").
			WithHint("Archived batches do not accrue new obligations").
			Mark(ierr.ErrInvalidOperation)
	}

	period := types.BillingPeriodStart(req.Period)
	o := &obligation.Obligation{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_OBLIGATION),
		StudentID:        req.StudentID,
		BatchID:          req.BatchID,
		Period:           period,
		Amount:           b.MonthlyFee, // snapshot; later fee edits never retouch this row
		ObligationStatus: types.ObligationStatusDue,
		PaymentMode:      types.PaymentModeUnset,
		DueDate:          types.DueDateForPeriod(period, s.Config.Billing.ObligationDueDay),
		MonthsCovered:    1,
		BaseModel:        types.GetDefaultBaseModel(ctx),
	}

	if err := o.Validate(); err != nil {
		return nil, err
	}

	if err := s.ObligationRepo.Create(ctx, o); err != nil {
		return nil, err
	}

	s.Logger.Debugw("created obligation",
		"obligation_id", o.ID,
		"student_id", o.StudentID,
		"batch_id", o.BatchID,
		"period", o.Period)

	return dto.NewObligationResponse(o), nil
}

func (s *ledgerService) GetObligation(ctx context.Context, id string) (*dto.ObligationResponse, error) {
	o, err := s.ObligationRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewObligationResponse(o), nil
}

func (s *ledgerService) MarkCash(ctx context.Context, obligationID, teacherID string) (*dto.ObligationResponse, error) {
	o, err := s.ObligationRepo.Get(ctx, obligationID)
	if err != nil {
		return nil, err
	}

	b, err := s.BatchRepo.Get(ctx, o.BatchID)
	if err != nil {
		return nil, err
	}
	if !b.IsOwnedBy(teacherID) {
		return nil, ierr.NewError("caller does not own the batch").
			WithHint("Only the batch's teacher can record a cash payment").
			Mark(ierr.ErrPermissionDenied)
	}

	if !o.ObligationStatus.IsPayable() {
		return nil, ierr.NewError("obligation is not payable").
			WithHintf("Obligation is already %s", o.ObligationStatus).
			WithReportableDetails(map[string]any{
				"obligation_id": obligationID,
				"status":        o.ObligationStatus,
			}).
			Mark(ierr.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	won, err := s.ObligationRepo.UpdateStatusIf(ctx, obligationID, o.ObligationStatus, obligation.StatusUpdate{
		ToStatus:    types.ObligationStatusPaid,
		PaymentMode: lo.ToPtr(types.PaymentModeCash),
		PaidDate:    &now,
	})
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ierr.NewError("obligation changed concurrently").
			WithHint("The obligation was settled by another request").
			Mark(ierr.ErrInvalidTransition)
	}

	s.Logger.Infow("marked obligation paid in cash",
		"obligation_id", obligationID,
		"teacher_id", teacherID)

	return s.GetObligation(ctx, obligationID)
}

func (s *ledgerService) SettleOnline(ctx context.Context, obligationID, settlementRef string, monthsCovered int) (*dto.ObligationResponse, bool, error) {
	o, err := s.ObligationRepo.Get(ctx, obligationID)
	if err != nil {
		return nil, false, err
	}

	// Replayed webhook delivery: already settled under the same reference.
	if o.ObligationStatus == types.ObligationStatusPaid &&
		o.SettlementRef != nil && *o.SettlementRef == settlementRef {
		s.Logger.Infow("ignoring replayed settlement confirmation",
			"obligation_id", obligationID,
			"settlement_ref", settlementRef)
		return dto.NewObligationResponse(o), true, nil
	}

	if o.ObligationStatus != types.ObligationStatusPending {
		return nil, false, ierr.NewError("obligation is not pending").
			WithHintf("Obligation is %s, not awaiting settlement", o.ObligationStatus).
			WithReportableDetails(map[string]any{
				"obligation_id": obligationID,
				"status":        o.ObligationStatus,
			}).
			Mark(ierr.ErrInvalidTransition)
	}

	// Only the reference written at initiation may settle the attempt. A
	// confirmation under any other reference must not steal the hold, or the
	// genuine reference's replay would surface as a conflict.
	if o.SettlementRef != nil && *o.SettlementRef != settlementRef {
		return nil, false, ierr.NewError("settlement reference mismatch").
			WithHint("The confirmation does not match the payment attempt holding this obligation").
			WithReportableDetails(map[string]any{
				"obligation_id": obligationID,
			}).
			Mark(ierr.ErrInvalidTransition)
	}

	if monthsCovered < 1 {
		monthsCovered = 1
	}

	now := time.Now().UTC()
	won, err := s.ObligationRepo.UpdateStatusIf(ctx, obligationID, types.ObligationStatusPending, obligation.StatusUpdate{
		ToStatus:      types.ObligationStatusPaid,
		PaidDate:      &now,
		MonthsCovered: &monthsCovered,
		SettlementRef: &settlementRef,
	})
	if err != nil {
		return nil, false, err
	}
	if !won {
		// A concurrent confirmation won the compare-and-set. With idempotent
		// settlement references the caller treats this as a benign no-op.
		updated, err := s.ObligationRepo.Get(ctx, obligationID)
		if err != nil {
			return nil, false, err
		}
		if updated.SettlementRef != nil && *updated.SettlementRef == settlementRef {
			return dto.NewObligationResponse(updated), true, nil
		}
		return nil, false, ierr.NewError("lost settlement race").
			WithHint("The obligation was settled by a concurrent request").
			Mark(ierr.ErrInvalidTransition)
	}

	s.Logger.Infow("settled obligation online",
		"obligation_id", obligationID,
		"settlement_ref", settlementRef)

	resp, err := s.GetObligation(ctx, obligationID)
	return resp, false, err
}

func (s *ledgerService) ReleaseOnline(ctx context.Context, obligationID, settlementRef string) error {
	won, err := s.ObligationRepo.UpdateStatusIf(ctx, obligationID, types.ObligationStatusPending, obligation.StatusUpdate{
		ToStatus:    types.ObligationStatusDue,
		PaymentMode: lo.ToPtr(types.PaymentModeUnset),
	})
	if err != nil {
		return err
	}
	if !won {
		// Already settled or already released; nothing to do.
		s.Logger.Debugw("skipping release of non-pending obligation",
			"obligation_id", obligationID,
			"settlement_ref", settlementRef)
	}
	return nil
}

func (s *ledgerService) RecomputeOverdue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.ObligationRepo.ListDuePastDueDate(ctx, now)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, o := range due {
		// Conditional on the row still being Due so the sweep never races a
		// concurrent cash mark or payment initiation.
		won, err := s.ObligationRepo.UpdateStatusIf(ctx, o.ID, types.ObligationStatusDue, obligation.StatusUpdate{
			ToStatus: types.ObligationStatusOverdue,
		})
		if err != nil {
			return count, err
		}
		if won {
			count++
		}
	}

	if count > 0 {
		s.Logger.Infow("marked obligations overdue", "count", count)
	}
	return count, nil
}

func (s *ledgerService) ExpirePendingPayments(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.Config.Billing.PendingPaymentTimeout)
	stale, err := s.ObligationRepo.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, o := range stale {
		won, err := s.ObligationRepo.UpdateStatusIf(ctx, o.ID, types.ObligationStatusPending, obligation.StatusUpdate{
			ToStatus:    types.ObligationStatusDue,
			PaymentMode: lo.ToPtr(types.PaymentModeUnset),
		})
		if err != nil {
			return count, err
		}
		if won {
			count++
			s.Logger.Infow("expired abandoned payment attempt",
				"obligation_id", o.ID,
				"pending_since", o.UpdatedAt)
		}
	}
	return count, nil
}

func (s *ledgerService) CancelFutureObligations(ctx context.Context, studentID, batchID string, from time.Time) (int, error) {
	count, err := s.ObligationRepo.CancelFrom(ctx, studentID, batchID, types.BillingPeriodStart(from))
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.Logger.Infow("cancelled future obligations",
			"student_id", studentID,
			"batch_id", batchID,
			"count", count)
	}
	return count, nil
}

func (s *ledgerService) GenerateMonthlyObligations(ctx context.Context, period time.Time) (int, error) {
	enrollments, err := s.EnrollmentRepo.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	period = types.BillingPeriodStart(period)
	count := 0
	for _, e := range enrollments {
		_, err := s.CreateObligation(ctx, dto.CreateObligationRequest{
			StudentID: e.StudentID,
			BatchID:   e.BatchID,
			Period:    period,
		})
		if err != nil {
			// Already accrued this month, or the batch has since been archived.
			if ierr.IsDuplicateObligation(err) || ierr.IsInvalidOperation(err) {
				continue
			}
			return count, err
		}
		count++
	}

	s.Logger.Infow("generated monthly obligations",
		"period", period,
		"created", count,
		"enrollments", len(enrollments))
	return count, nil
}
