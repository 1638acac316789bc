package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tutorbill/tutorbill/internal/domain/subscription"
	ierr "github.com/tutorbill/tutorbill/internal/errors"
	"github.com/tutorbill/tutorbill/internal/logger"
	"github.com/tutorbill/tutorbill/internal/postgres"
	"github.com/tutorbill/tutorbill/internal/types"
)

type subscriptionRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

func NewSubscriptionRepository(db postgres.IClient, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

const accountColumns = `
	id, teacher_id, plan, subscription_status, next_billing_date,
	grace_period_ends, materials_locked, lock_reason,
	tenant_id, status, created_at, updated_at, created_by, updated_by
`

const paymentColumns = `
	id, account_id, amount, billing_period_start, billing_period_end,
	payment_status, paid_date, settlement_ref,
	tenant_id, status, created_at, updated_at, created_by, updated_by
`

func (r *subscriptionRepository) CreateAccount(ctx context.Context, a *subscription.Account) error {
	query := `
	INSERT INTO subscription_accounts (` + accountColumns + `)
	VALUES (
		:id, :teacher_id, :plan, :subscription_status, :next_billing_date,
		:grace_period_ends, :materials_locked, :lock_reason,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, a); err != nil {
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A subscription account already exists for this teacher").
				WithReportableDetails(map[string]any{"teacher_id": a.TeacherID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create subscription account").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) GetAccount(ctx context.Context, id string) (*subscription.Account, error) {
	query := `
	SELECT ` + accountColumns + `
	FROM subscription_accounts
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	var a subscription.Account
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &a, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, r.mapAccountErr(err, id)
	}
	return &a, nil
}

func (r *subscriptionRepository) GetAccountByTeacher(ctx context.Context, teacherID string) (*subscription.Account, error) {
	query := `
	SELECT ` + accountColumns + `
	FROM subscription_accounts
	WHERE teacher_id = $1 AND tenant_id = $2 AND status != $3
	`

	var a subscription.Account
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &a, query,
		teacherID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, r.mapAccountErr(err, teacherID)
	}
	return &a, nil
}

func (r *subscriptionRepository) mapAccountErr(err error, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ierr.NewError("subscription account not found").
			WithHint("Subscription account not found").
			WithReportableDetails(map[string]any{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return ierr.WithError(err).
		WithHint("Failed to get subscription account").
		Mark(ierr.ErrDatabase)
}

func (r *subscriptionRepository) UpdateAccount(ctx context.Context, a *subscription.Account) error {
	a.UpdatedAt = time.Now().UTC()
	a.UpdatedBy = types.GetUserID(ctx)

	query := `
	UPDATE subscription_accounts SET
		plan = :plan,
		subscription_status = :subscription_status,
		next_billing_date = :next_billing_date,
		grace_period_ends = :grace_period_ends,
		materials_locked = :materials_locked,
		lock_reason = :lock_reason,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id
	`

	res, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, a)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription account").
			Mark(ierr.ErrDatabase)
	}
	return requireRowAffected(res, "subscription account", a.ID)
}

func (r *subscriptionRepository) UpdateAccountStatusIf(ctx context.Context, id string, fromStatus types.SubscriptionStatus, a *subscription.Account) (bool, error) {
	query := `
	UPDATE subscription_accounts SET
		subscription_status = $1,
		next_billing_date = $2,
		grace_period_ends = $3,
		materials_locked = $4,
		lock_reason = $5,
		updated_at = $6,
		updated_by = $7
	WHERE id = $8 AND tenant_id = $9
		AND subscription_status = $10 AND status != $11
	`

	res, err := r.db.Querier(ctx).ExecContext(ctx, query,
		a.SubscriptionStatus,
		a.NextBillingDate,
		a.GracePeriodEnds,
		a.MaterialsLocked,
		a.LockReason,
		time.Now().UTC(),
		types.GetUserID(ctx),
		id,
		types.GetTenantID(ctx),
		fromStatus,
		types.StatusDeleted,
	)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to transition subscription account").
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

func (r *subscriptionRepository) ListAccountsDueBefore(ctx context.Context, now time.Time) ([]*subscription.Account, error) {
	query := `
	SELECT ` + accountColumns + `
	FROM subscription_accounts
	WHERE tenant_id = $1 AND status != $2
		AND subscription_status != $3 AND next_billing_date <= $4
	ORDER BY next_billing_date
	`

	var accounts []*subscription.Account
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &accounts, query,
		types.GetTenantID(ctx), types.StatusDeleted,
		types.SubscriptionStatusExpired, now)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list accounts due for the cycle sweep").
			Mark(ierr.ErrDatabase)
	}
	return accounts, nil
}

func (r *subscriptionRepository) CreatePayment(ctx context.Context, p *subscription.Payment) error {
	query := `
	INSERT INTO subscription_payments (` + paymentColumns + `)
	VALUES (
		:id, :account_id, :amount, :billing_period_start, :billing_period_end,
		:payment_status, :paid_date, :settlement_ref,
		:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)
	`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, p); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create subscription payment").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) GetPayment(ctx context.Context, id string) (*subscription.Payment, error) {
	query := `
	SELECT ` + paymentColumns + `
	FROM subscription_payments
	WHERE id = $1 AND tenant_id = $2 AND status != $3
	`

	var p subscription.Payment
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &p, query,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("subscription payment not found").
				WithHint("Subscription payment not found").
				WithReportableDetails(map[string]any{"payment_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription payment").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *subscriptionRepository) UpdatePaymentStatusIf(ctx context.Context, id string, fromStatus types.SubscriptionPaymentStatus, update subscription.PaymentUpdate) (bool, error) {
	query := `
	UPDATE subscription_payments SET
		payment_status = $1,
		paid_date = COALESCE($2, paid_date),
		settlement_ref = COALESCE($3, settlement_ref),
		updated_at = $4,
		updated_by = $5
	WHERE id = $6 AND tenant_id = $7
		AND payment_status = $8 AND status != $9
	`

	res, err := r.db.Querier(ctx).ExecContext(ctx, query,
		update.ToStatus,
		update.PaidDate,
		update.SettlementRef,
		time.Now().UTC(),
		types.GetUserID(ctx),
		id,
		types.GetTenantID(ctx),
		fromStatus,
		types.StatusDeleted,
	)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to transition subscription payment").
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

func (r *subscriptionRepository) GetOpenPayment(ctx context.Context, accountID string) (*subscription.Payment, error) {
	query := `
	SELECT ` + paymentColumns + `
	FROM subscription_payments
	WHERE account_id = $1 AND tenant_id = $2 AND status != $3
		AND payment_status = $4
	ORDER BY billing_period_start
	LIMIT 1
	`

	var p subscription.Payment
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &p, query,
		accountID, types.GetTenantID(ctx), types.StatusDeleted,
		types.SubscriptionPaymentStatusDue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("no open cycle payment").
				WithHint("The account has no unpaid billing cycle").
				WithReportableDetails(map[string]any{"account_id": accountID}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get open subscription payment").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *subscriptionRepository) ListPayments(ctx context.Context, accountID string) ([]*subscription.Payment, error) {
	query := `
	SELECT ` + paymentColumns + `
	FROM subscription_payments
	WHERE account_id = $1 AND tenant_id = $2 AND status != $3
	ORDER BY billing_period_start
	`

	var payments []*subscription.Payment
	err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &payments, query,
		accountID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscription payments").
			Mark(ierr.ErrDatabase)
	}
	return payments, nil
}

func (r *subscriptionRepository) HasPaidPayment(ctx context.Context, accountID string) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM subscription_payments
		WHERE account_id = $1 AND tenant_id = $2 AND status != $3
			AND payment_status = $4
	)
	`

	var exists bool
	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &exists, query,
		accountID, types.GetTenantID(ctx), types.StatusDeleted,
		types.SubscriptionPaymentStatusPaid)
	if err != nil {
		return false, ierr.WithError(err).
			WithHint("Failed to check for settled cycles").
			Mark(ierr.ErrDatabase)
	}
	return exists, nil
}
