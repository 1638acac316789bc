package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tutorbill/tutorbill/internal/domain/obligation"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/postgres"
	"github.com/tutorbill/tutorbill/internal/types"
)

type obligationRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewObligationRepository(db postgres.IClient, logger *logger.Logger) obligation.Repository {
	return &obligationRepository{db: db, logger: logger}
}

const obligationColumns = `
	id, student_id, batch_id, period, amount, obligation_status,
	payment_mode, due_date, paid_date, months_covered, settlement_ref,
	tenant_id, status, created_at, updated_at, created_by, updated_by
`

func (r *obligationRepository) Create(ctx context.Context, o *obligation.Obligation) error {
	query := `
	INSERT INTO payment_obligations (` + obligationColumns + `)
	VALUES (
		:id, :student_id, :batch_id, :period, :amount, :obligation_status,
		:payment_mode, :due_date, :paid_date, :months_covered, :settlement_ref,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, o); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("An obligation for this student, batch and month already exists").
				WithReportableDetails(map[string]any{
					"student_id": o.StudentID,
					"batch_id":   o.BatchID,
					"period":     o.Period,
				}).
				Mark(ierr.ErrDuplicateObligation)
		}
		return ierr.WithError(err).
			WithHint("Failed to create obligation").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *obligationRepository) Get(ctx context.Context, id string) (*obligation.Obligation, error) {
	query := `
	SELECT ` + obligationColumns + `
	FROM payment_obligations
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	var o obligation.Obligation
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &o, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("obligation not found").
				WithHint("Obligation not found").
				WithReportableDetails(map[string]any{"obligation_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get obligation").
			Mark(ierr.ErrDatabase)
	}
	return &o, nil
}

func (r *obligationRepository) List(ctx context.Context, filter *types.ObligationFilter) ([]*obligation.Obligation, error) {
	where, args := r.buildConditions(ctx, filter)
	query := `
	SELECT ` + obligationColumns + `
	FROM payment_obligations
	WHERE ` + where + `
	ORDER BY period, created_at
	`

	if filter != nil && !filter.IsUnlimited() {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, filter.GetLimit(), filter.GetOffset())
	}

	var obligations []*obligation.Obligation
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &obligations, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list obligations").
			Mark(ierr.ErrDatabase)
	}
	return obligations, nil
}

func (r *obligationRepository) Count(ctx context.Context, filter *types.ObligationFilter) (int, error) {
	where, args := r.buildConditions(ctx, filter)
	query := `SELECT COUNT(*) FROM payment_obligations WHERE ` + where

	var count int
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &count, query, args...); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count obligations").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

func (r *obligationRepository) buildConditions(ctx context.Context, filter *types.ObligationFilter) (string, []any) {
	conditions := []string{"tenant_id = $1", "status != $2"}
	args := []any{types.GetTenantID(ctx), types.StatusDeleted}

	next := func() int { return len(args) + 1 }

	if filter == nil {
		return strings.Join(conditions, " AND "), args
	}

	if len(filter.ObligationIDs) > 0 {
		placeholders := make([]string, 0, len(filter.ObligationIDs))
		for _, id := range filter.ObligationIDs {
			placeholders = append(placeholders, fmt.Sprintf("$%d", next()))
			args = append(args, id)
		}
		conditions = append(conditions, "id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.StudentID != nil {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", next()))
		args = append(args, *filter.StudentID)
	}
	if filter.BatchID != nil {
		conditions = append(conditions, fmt.Sprintf("batch_id = $%d", next()))
		args = append(args, *filter.BatchID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			placeholders = append(placeholders, fmt.Sprintf("$%d", next()))
			args = append(args, s)
		}
		conditions = append(conditions, "obligation_status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.PeriodFrom != nil {
		conditions = append(conditions, fmt.Sprintf("period >= $%d", next()))
		args = append(args, *filter.PeriodFrom)
	}
	if filter.PeriodTo != nil {
		conditions = append(conditions, fmt.Sprintf("period <= $%d", next()))
		args = append(args, *filter.PeriodTo)
	}
	if filter.DueBefore != nil {
		conditions = append(conditions, fmt.Sprintf("due_date < $%d", next()))
		args = append(args, *filter.DueBefore)
	}

	return strings.Join(conditions, " AND "), args
}

// UpdateStatusIf runs a single conditional UPDATE. The status check makes it
// a compare-and-set; for transitions into PENDING an extra NOT EXISTS guard
// rejects the transition when another PENDING row for the same student+batch
// holds a different settlement reference.
func (r *obligationRepository) UpdateStatusIf(ctx context.Context, id string, fromStatus types.ObligationStatus, update obligation.StatusUpdate) (bool, error) {
	query := `
	UPDATE payment_obligations AS o SET
		obligation_status = $1,
		payment_mode = COALESCE($2, payment_mode),
		paid_date = COALESCE($3, paid_date),
		months_covered = COALESCE($4, months_covered),
		settlement_ref = COALESCE($5, settlement_ref),
		updated_at = $6,
		updated_by = $7
	WHERE o.id = $8 AND o.tenant_id = $9
		AND o.obligation_status = $10 AND o.status != $11
		AND ($1 != $12 OR NOT EXISTS (
			SELECT 1 FROM payment_obligations p
			WHERE p.tenant_id = o.tenant_id
				AND p.student_id = o.student_id
				AND p.batch_id = o.batch_id
				AND p.obligation_status = $12
				AND p.status != $11
				AND p.settlement_ref IS DISTINCT FROM $5
		))
	`

	res, err := r.db.Querier(ctx).ExecContext(ctx, query,
		update.ToStatus,
		update.PaymentMode,
		update.PaidDate,
		update.MonthsCovered,
		update.SettlementRef,
		time.Now().UTC(),
		types.GetUserID(ctx),
		id,
		types.GetTenantID(ctx),
		fromStatus,
		types.StatusDeleted,
		types.ObligationStatusPending,
	)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to update obligation status").
			Mark(ierr.ErrDatabase)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	return n > 0, nil
}

func (r *obligationRepository) CountPending(ctx context.Context, studentID, batchID string) (int, error) {
	query := `
	SELECT COUNT(*)
	FROM payment_obligations
	WHERE student_id = $1 AND batch_id = $2 AND tenant_id = $3
		AND obligation_status = $4 AND status != $5
	`

	var count int
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &count, query,
		studentID, batchID, types.GetTenantID(ctx),
		types.ObligationStatusPending, types.StatusDeleted)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count pending obligations").
			Mark(ierr.ErrDatabase)
	}
	return count, nil
}

// ListPendingOlderThan relies on updated_at: the transition into PENDING is
// the last write a pending row sees, so updated_at marks when the payment
// attempt started.
func (r *obligationRepository) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]*obligation.Obligation, error) {
	query := `
	SELECT ` + obligationColumns + `
	FROM payment_obligations
	WHERE tenant_id = $1 AND obligation_status = $2 AND status != $3
		AND updated_at < $4
	ORDER BY updated_at
	`

	var obligations []*obligation.Obligation
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &obligations, query,
		types.GetTenantID(ctx), types.ObligationStatusPending, types.StatusDeleted, cutoff)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list stale pending obligations").
			Mark(ierr.ErrDatabase)
	}
	return obligations, nil
}

func (r *obligationRepository) ListDuePastDueDate(ctx context.Context, now time.Time) ([]*obligation.Obligation, error) {
	query := `
	SELECT ` + obligationColumns + `
	FROM payment_obligations
	WHERE tenant_id = $1 AND obligation_status = $2 AND status != $3
		AND due_date < $4
	ORDER BY due_date
	`

	var obligations []*obligation.Obligation
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &obligations, query,
		types.GetTenantID(ctx), types.ObligationStatusDue, types.StatusDeleted, now)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list overdue candidates").
			Mark(ierr.ErrDatabase)
	}
	return obligations, nil
}

func (r *obligationRepository) CancelFrom(ctx context.Context, studentID, batchID string, from time.Time) (int, error) {
	query := `
	UPDATE payment_obligations SET status = $1, updated_at = $2, updated_by = $3
	WHERE student_id = $4 AND batch_id = $5 AND tenant_id = $6
		AND obligation_status = $7 AND status != $1 AND period >= $8
	`

	res, err := r.db.Querier(ctx).ExecContext(ctx, query,
		types.StatusDeleted, time.Now().UTC(), types.GetUserID(ctx),
		studentID, batchID, types.GetTenantID(ctx),
		types.ObligationStatusDue, from)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to cancel future obligations").
			Mark(ierr.ErrDatabase)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to read affected rows").
			Mark(ierr.ErrDatabase)
	}
	return int(n), nil
}
