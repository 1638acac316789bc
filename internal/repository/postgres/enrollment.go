package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tutorbill/tutorbill/internal/domain/enrollment"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/postgres"
	"github.com/tutorbill/tutorbill/internal/types"
)

type enrollmentRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewEnrollmentRepository(db postgres.IClient, logger *logger.Logger) enrollment.Repository {
	return &enrollmentRepository{db: db, logger: logger}
}

const enrollmentColumns = `
	id, student_id, batch_id,
	tenant_id, status, created_at, updated_at, created_by, updated_by
`

func (r *enrollmentRepository) Create(ctx context.Context, e *enrollment.Enrollment) error {
	query := `
	INSERT INTO enrollments (` + enrollmentColumns + `)
	VALUES (
		:id, :student_id, :batch_id,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, e); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Student is already enrolled in this batch").
				WithReportableDetails(map[string]any{
					"student_id": e.StudentID,
					"batch_id":   e.BatchID,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create enrollment").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *enrollmentRepository) Get(ctx context.Context, id string) (*enrollment.Enrollment, error) {
	query := `
	SELECT ` + enrollmentColumns + `
	FROM enrollments
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	var e enrollment.Enrollment
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &e, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("enrollment not found").
				WithHint("Enrollment not found").
				WithReportableDetails(map[string]any{"enrollment_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get enrollment").
			Mark(ierr.ErrDatabase)
	}
	return &e, nil
}

func (r *enrollmentRepository) GetByStudentAndBatch(ctx context.Context, studentID, batchID string) (*enrollment.Enrollment, error) {
	query := `
	SELECT ` + enrollmentColumns + `
	FROM enrollments
	WHERE student_id = $1 AND batch_id = $2 AND tenant_id = $3 AND status != $4
	`

	var e enrollment.Enrollment
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &e, query,
		studentID, batchID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("enrollment not found").
				WithHint("No enrollment exists for this student and batch").
				WithReportableDetails(map[string]any{
					"student_id": studentID,
					"batch_id":   batchID,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get enrollment").
			Mark(ierr.ErrDatabase)
	}
	return &e, nil
}

func (r *enrollmentRepository) Remove(ctx context.Context, id string) error {
	query := `
	UPDATE enrollments SET status = $1, updated_at = $2, updated_by = $3
	WHERE id = $4 AND tenant_id = $5 AND status != $1
	`

	res, err := r.db.Querier(ctx).ExecContext(ctx, query,
		types.StatusDeleted, time.Now().UTC(), types.GetUserID(ctx),
		id, types.GetTenantID(ctx))
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to remove enrollment").
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "enrollment", id)
}

func (r *enrollmentRepository) ListByBatch(ctx context.Context, batchID string) ([]*enrollment.Enrollment, error) {
	query := `
	SELECT ` + enrollmentColumns + `
	FROM enrollments
	WHERE batch_id = $1 AND tenant_id = $2 AND status = $3
	ORDER BY created_at
	`

	var enrollments []*enrollment.Enrollment
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &enrollments, query,
		batchID, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list enrollments for batch").
			Mark(ierr.ErrDatabase)
	}
	return enrollments, nil
}

func (r *enrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]*enrollment.Enrollment, error) {
	query := `
	SELECT ` + enrollmentColumns + `
	FROM enrollments
	WHERE student_id = $1 AND tenant_id = $2 AND status = $3
	ORDER BY created_at
	`

	var enrollments []*enrollment.Enrollment
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &enrollments, query,
		studentID, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list enrollments for student").
			Mark(ierr.ErrDatabase)
	}
	return enrollments, nil
}

func (r *enrollmentRepository) ListActive(ctx context.Context) ([]*enrollment.Enrollment, error) {
	query := `
	SELECT ` + enrollmentColumns + `
	FROM enrollments
	WHERE tenant_id = $1 AND status = $2
	ORDER BY created_at
	`

	var enrollments []*enrollment.Enrollment
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &enrollments, query,
		types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list active enrollments").
			Mark(ierr.ErrDatabase)
	}
	return enrollments, nil
}

func (r *enrollmentRepository) CountByTeacher(ctx context.Context, teacherID string) (int, error) {
	query := `
	SELECT COUNT(*)
	FROM enrollments e
	JOIN batches b ON b.id = e.batch_id AND b.tenant_id = e.tenant_id
	WHERE b.teacher_id = $1 AND e.tenant_id = $2
		AND e.status = $3 AND b.status != $4
	`

	var count int
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &count, query,
		teacherID, types.GetTenantID(ctx), types.StatusPublished, types.StatusDeleted)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count enrollments for teacher").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}
