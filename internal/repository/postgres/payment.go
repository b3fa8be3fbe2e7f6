package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gigpay/internal/domain"
	"gigpay/pkg/errors"
)

// PaymentRepository implements ledger.PaymentRepository over sqlx.
type PaymentRepository struct {
	db sqlx.ExtContext
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) withTx(tx *sqlx.Tx) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, wallet_id, system_reference, provider, amount, currency, direction,
			channel, status, provider_reference, cancel_reason, failed_reason,
			created_at, updated_at
		) VALUES (
			:id, :wallet_id, :system_reference, :provider, :amount, :currency, :direction,
			:channel, :status, :provider_reference, :cancel_reason, :failed_reason,
			:created_at, :updated_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.db, query, payment)
	if isUniqueViolation(err) {
		return errors.ErrDuplicateReference
	}
	return errors.Wrap(err, "failed to create payment")
}

// UpdateFrom persists a status transition conditioned on the status the
// caller loaded. A concurrent writer that already applied a transition makes
// this a zero-row update, surfaced as a conflict rather than a silent
// overwrite.
func (r *PaymentRepository) UpdateFrom(ctx context.Context, payment domain.Payment, from domain.PaymentStatus) error {
	query := `
		UPDATE payments SET
			status = :status,
			provider_reference = :provider_reference,
			cancel_reason = :cancel_reason,
			failed_reason = :failed_reason,
			updated_at = :updated_at
		WHERE id = :id AND status = :prev_status
	`
	arg := struct {
		domain.Payment
		PrevStatus domain.PaymentStatus `db:"prev_status"`
	}{Payment: payment, PrevStatus: from}

	result, err := sqlx.NamedExecContext(ctx, r.db, query, arg)
	if err != nil {
		return errors.Wrap(err, "failed to update payment")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.ErrConcurrencyConflict
	}
	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	return r.findOne(ctx, `SELECT * FROM payments WHERE id = $1`, id)
}

func (r *PaymentRepository) FindBySystemReference(ctx context.Context, ref string) (domain.Payment, error) {
	return r.findOne(ctx, `SELECT * FROM payments WHERE system_reference = $1`, ref)
}

func (r *PaymentRepository) FindByProviderReference(ctx context.Context, ref string) (domain.Payment, error) {
	return r.findOne(ctx, `SELECT * FROM payments WHERE provider_reference = $1`, ref)
}

func (r *PaymentRepository) findOne(ctx context.Context, query string, arg interface{}) (domain.Payment, error) {
	var payment domain.Payment
	err := sqlx.GetContext(ctx, r.db, &payment, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Payment{}, errors.ErrPaymentNotFound
		}
		return domain.Payment{}, errors.Wrap(err, "failed to find payment")
	}
	return payment, nil
}

func (r *PaymentRepository) FindByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Payment, error) {
	var payments []domain.Payment
	query := `SELECT * FROM payments WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	err := sqlx.SelectContext(ctx, r.db, &payments, query, walletID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list payments by wallet")
	}
	return payments, nil
}
