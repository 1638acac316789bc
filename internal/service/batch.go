package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tutorbill/tutorbill/internal/api/dto"
	"github.com/tutorbill/tutorbill/internal/cache"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	"github.com/tutorbill/tutorbill/internal/domain/enrollment"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/types"
)

// BatchService manages batches and enrollments. Fee and limit changes only
// affect obligations generated after the change; existing obligations keep
// their snapshotted amounts.
type BatchService interface {
	CreateBatch(ctx context.Context, req dto.CreateBatchRequest) (*dto.BatchResponse, error)
	GetBatch(ctx context.Context, id string) (*dto.BatchResponse, error)
	UpdateBatch(ctx context.Context, id string, req dto.UpdateBatchRequest) (*dto.BatchResponse, error)
	ArchiveBatch(ctx context.Context, id, teacherID string) error
	ListBatchesByTeacher(ctx context.Context, teacherID string) ([]*dto.BatchResponse, error)

	// QuoteContribution returns the batch's share of the teacher's
	// subscription fee at its current fee and limit.
	QuoteContribution(ctx context.Context, batchID string) (*dto.BatchContributionQuote, error)
	GetTeacherMetrics(ctx context.Context, teacherID string) (*dto.TeacherMetricsResponse, error)

	// ApproveEnrollment enrolls the student and accrues the current month's
	// obligation against the batch.
	ApproveEnrollment(ctx context.Context, req dto.CreateEnrollmentRequest) (*enrollment.Enrollment, error)
	// RemoveEnrollment drops the student from the batch and cancels their
	// unpaid obligations for periods after the current one. Paid history is
	// never touched.
	RemoveEnrollment(ctx context.Context, enrollmentID, teacherID string) error
}

type batchService struct {
	ServiceParams
	feeCalc FeeCalculatorService
	ledger  LedgerService
}

// NewBatchService creates a new batch service
func NewBatchService(params ServiceParams) BatchService {
	return &batchService{
		ServiceParams: params,
		feeCalc:       NewFeeCalculatorService(params.Config.Billing),
		ledger:        NewLedgerService(params),
	}
}

func (s *batchService) CreateBatch(ctx context.Context, req dto.CreateBatchRequest) (*dto.BatchResponse, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	b := req.ToBatch(ctx)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.BatchRepo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.Logger.Infow("created batch",
		"batch_id", b.ID,
		"teacher_id", b.TeacherID,
		"monthly_fee", b.MonthlyFee,
		"student_limit", b.StudentLimit)

	return dto.NewBatchResponse(b), nil
}

func (s *batchService) GetBatch(ctx context.Context, id string) (*dto.BatchResponse, error) {
	key := cache.GenerateKey(cache.PrefixBatch, id)
	if s.Cache != nil {
		if cached, found := s.Cache.Get(ctx, key); found {
			if b, ok := cached.(*batch.Batch); ok {
				return dto.NewBatchResponse(b), nil
			}
		}
	}

	b, err := s.BatchRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		s.Cache.Set(ctx, key, b, cache.DefaultExpiration)
	}
	return dto.NewBatchResponse(b), nil
}

func (s *batchService) UpdateBatch(ctx context.Context, id string, req dto.UpdateBatchRequest) (*dto.BatchResponse, error) {
	b, err := s.BatchRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status == types.StatusArchived {
		return nil, ierr.NewError("batch is archived").
			WithHint("Archived batches cannot be updated").
			Mark(ierr.ErrInvalidOperation)
	}

	if req.Name != nil {
		b.Name = *req.Name
	}
	if req.MonthlyFee != nil {
		if req.MonthlyFee.IsNegative() {
			return nil, ierr.NewError("monthly fee must not be negative").
				WithHint("Monthly fee must not be negative").
				Mark(ierr.ErrValidation)
		}
		b.MonthlyFee = *req.MonthlyFee
	}
	if req.StudentLimit != nil {
		if *req.StudentLimit < 1 {
			return nil, ierr.NewError("student limit must be at least 1").
				WithHint("Student limit must be at least 1").
				Mark(ierr.ErrValidation)
		}
		b.StudentLimit = *req.StudentLimit
	}
	b.UpdatedAt = time.Now().UTC()

	if err := b.Validate(); err != nil {
		return nil, err
	}
	if err := s.BatchRepo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)

	return dto.NewBatchResponse(b), nil
}

func (s *batchService) ArchiveBatch(ctx context.Context, id, teacherID string) error {
	b, err := s.BatchRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsOwnedBy(teacherID) {
		return ierr.NewError("batch does not belong to teacher").
			WithHint("Only the owning teacher can archive a batch").
			Mark(ierr.ErrPermissionDenied)
	}

	if err := s.BatchRepo.Archive(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)

	s.Logger.Infow("archived batch", "batch_id", id, "teacher_id", teacherID)
	return nil
}

func (s *batchService) ListBatchesByTeacher(ctx context.Context, teacherID string) ([]*dto.BatchResponse, error) {
	batches, err := s.BatchRepo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.BatchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, dto.NewBatchResponse(b))
	}
	return out, nil
}

func (s *batchService) QuoteContribution(ctx context.Context, batchID string) (*dto.BatchContributionQuote, error) {
	b, err := s.BatchRepo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}

	contribution, err := s.feeCalc.BatchContribution(b.StudentLimit, b.MonthlyFee)
	if err != nil {
		return nil, err
	}

	return &dto.BatchContributionQuote{
		BatchID:      b.ID,
		StudentLimit: b.StudentLimit,
		MonthlyFee:   b.MonthlyFee,
		Contribution: contribution,
	}, nil
}

func (s *batchService) GetTeacherMetrics(ctx context.Context, teacherID string) (*dto.TeacherMetricsResponse, error) {
	batches, err := s.BatchRepo.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	resp := &dto.TeacherMetricsResponse{
		TotalFees:         decimal.Zero,
		TotalContribution: decimal.Zero,
	}

	for _, b := range batches {
		if b.Status != types.StatusPublished {
			continue
		}
		enrollments, err := s.EnrollmentRepo.ListByBatch(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		contribution, err := s.feeCalc.BatchContribution(b.StudentLimit, b.MonthlyFee)
		if err != nil {
			return nil, err
		}

		resp.TotalBatches++
		resp.TotalStudents += len(enrollments)
		resp.TotalFees = resp.TotalFees.Add(b.MonthlyFee.Mul(decimal.NewFromInt(int64(len(enrollments)))))
		resp.TotalContribution = resp.TotalContribution.Add(contribution)
	}

	if resp.TotalStudents > 0 {
		resp.AverageFeePerStudent = resp.TotalFees.Div(decimal.NewFromInt(int64(resp.TotalStudents))).Round(2)
	}
	if resp.TotalBatches > 0 {
		resp.AverageContribution = resp.TotalContribution.Div(decimal.NewFromInt(int64(resp.TotalBatches))).Round(2)
	}

	return resp, nil
}

func (s *batchService) ApproveEnrollment(ctx context.Context, req dto.CreateEnrollmentRequest) (*enrollment.Enrollment, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}

	b, err := s.BatchRepo.Get(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if b.Status != types.StatusPublished {
		return nil, ierr.NewError("batch is not open for enrollment").
			WithHint("The batch is archived").
			WithReportableDetails(map[string]any{"batch_id": b.ID}).
			Mark(ierr.ErrInvalidOperation)
	}

	if existing, err := s.EnrollmentRepo.GetByStudentAndBatch(ctx, req.StudentID, req.BatchID); err == nil && existing != nil {
		return nil, ierr.NewError("student already enrolled in batch").
			WithHint("The student is already enrolled in this batch").
			Mark(ierr.ErrAlreadyExists)
	} else if err != nil && !ierr.IsNotFound(err) {
		return nil, err
	}

	current, err := s.EnrollmentRepo.ListByBatch(ctx, req.BatchID)
	if err != nil {
		return nil, err
	}
	if len(current) >= b.StudentLimit {
		return nil, ierr.NewError("batch is full").
			WithHint("The batch has reached its student limit").
			WithReportableDetails(map[string]any{
				"batch_id":      b.ID,
				"student_limit": b.StudentLimit,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	e := &enrollment.Enrollment{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENROLLMENT),
		StudentID: req.StudentID,
		BatchID:   req.BatchID,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.EnrollmentRepo.Create(ctx, e); err != nil {
		return nil, err
	}

	// The first month accrues at approval; a mid-month joiner owes the full
	// month immediately rather than waiting for the monthly generation run.
	// A re-joining student may still owe this month's row from before removal.
	_, err = s.ledger.CreateObligation(ctx, dto.CreateObligationRequest{
		StudentID: req.StudentID,
		BatchID:   req.BatchID,
		Period:    time.Now().UTC(),
	})
	if err != nil && !ierr.IsDuplicateObligation(err) {
		return nil, err
	}

	s.Logger.Infow("approved enrollment",
		"enrollment_id", e.ID,
		"student_id", e.StudentID,
		"batch_id", e.BatchID)

	return e, nil
}

func (s *batchService) RemoveEnrollment(ctx context.Context, enrollmentID, teacherID string) error {
	e, err := s.EnrollmentRepo.Get(ctx, enrollmentID)
	if err != nil {
		return err
	}

	b, err := s.BatchRepo.Get(ctx, e.BatchID)
	if err != nil {
		return err
	}
	if !b.IsOwnedBy(teacherID) {
		return ierr.NewError("batch does not belong to teacher").
			WithHint("Only the owning teacher can remove a student").
			Mark(ierr.ErrPermissionDenied)
	}

	if err := s.EnrollmentRepo.Remove(ctx, enrollmentID); err != nil {
		return err
	}

	// The current period's obligation stands; only later periods go away.
	from := types.NextBillingPeriod(types.BillingPeriodStart(time.Now().UTC()))
	cancelled, err := s.ledger.CancelFutureObligations(ctx, e.StudentID, e.BatchID, from)
	if err != nil {
		return err
	}

	s.Logger.Infow("removed enrollment",
		"enrollment_id", enrollmentID,
		"student_id", e.StudentID,
		"batch_id", e.BatchID,
		"cancelled_obligations", cancelled)
	return nil
}

func (s *batchService) invalidate(ctx context.Context, batchID string) {
	if s.Cache != nil {
		s.Cache.Delete(ctx, cache.GenerateKey(cache.PrefixBatch, batchID))
	}
}
