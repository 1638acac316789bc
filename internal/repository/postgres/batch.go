package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tutorbill/tutorbill/internal/domain/batch"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/postgres"
	"github.com/tutorbill/tutorbill/internal/types"
)

type batchRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewBatchRepository(db postgres.IClient, logger *logger.Logger) batch.Repository {
	return &batchRepository{db: db, logger: logger}
}

const batchColumns = `
	id, teacher_id, name, monthly_fee, student_limit,
	tenant_id, status, created_at, updated_at, created_by, updated_by
`

func (r *batchRepository) Create(ctx context.Context, b *batch.Batch) error {
	query := `
	INSERT INTO batches (` + batchColumns + `)
	VALUES (
		:id, :teacher_id, :name, :monthly_fee, :student_limit,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, b); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create batch").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *batchRepository) Get(ctx context.Context, id string) (*batch.Batch, error) {
	query := `
	SELECT ` + batchColumns + `
	FROM batches
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	var b batch.Batch
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &b, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("batch not found").
				WithHint("Batch not found").
				WithReportableDetails(map[string]any{"batch_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get batch").
			Mark(ierr.ErrDatabase)
	}
	return &b, nil
}

func (r *batchRepository) Update(ctx context.Context, b *batch.Batch) error {
	b.UpdatedAt = time.Now().UTC()
	b.UpdatedBy = types.GetUserID(ctx)

	query := `
	UPDATE batches SET
		name = :name,
		monthly_fee = :monthly_fee,
		student_limit = :student_limit,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id
	`

	res, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, b)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update batch").
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "batch", b.ID)
}

func (r *batchRepository) Archive(ctx context.Context, id string) error {
	query := `
	UPDATE batches SET status = $1, updated_at = $2, updated_by = $3
	WHERE id = $4 AND tenant_id = $5 AND status = $6
	`

	res, err := r.db.Querier(ctx).ExecContext(ctx, query,
		types.StatusArchived, time.Now().UTC(), types.GetUserID(ctx),
		id, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to archive batch").
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "batch", id)
}

func (r *batchRepository) List(ctx context.Context, filter *types.QueryFilter) ([]*batch.Batch, error) {
	query := `
	SELECT ` + batchColumns + `
	FROM batches
	WHERE tenant_id = $1 AND status != $2
	ORDER BY created_at
	`
	args := []any{types.GetTenantID(ctx), types.StatusDeleted}

	if filter != nil && !filter.IsUnlimited() {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, filter.GetLimit(), filter.GetOffset())
	}

	var batches []*batch.Batch
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &batches, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list batches").
			Mark(ierr.ErrDatabase)
	}
	return batches, nil
}

func (r *batchRepository) ListByTeacher(ctx context.Context, teacherID string) ([]*batch.Batch, error) {
	query := `
	SELECT ` + batchColumns + `
	FROM batches
	WHERE tenant_id = $1 AND teacher_id = $2 AND status != $3
	ORDER BY created_at
	`

	var batches []*batch.Batch
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &batches, query,
		types.GetTenantID(ctx), teacherID, types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list batches for teacher").
			Mark(ierr.ErrDatabase)
	}
	return batches, nil
}

func requireRowAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	if n == 0 {
		return ierr.NewError(entity+" not found").
			WithHintf("No %s row matched the update", entity).
			WithReportableDetails(map[string]any{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
