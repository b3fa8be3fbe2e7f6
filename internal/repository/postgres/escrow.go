package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gigpay/internal/domain"
	"gigpay/pkg/errors"
)

// EscrowRepository implements ledger.EscrowRepository over sqlx.
type EscrowRepository struct {
	db sqlx.ExtContext
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

func (r *EscrowRepository) withTx(tx *sqlx.Tx) *EscrowRepository {
	return &EscrowRepository{db: tx}
}

func (r *EscrowRepository) Create(ctx context.Context, escrow domain.EscrowAccount) error {
	query := `
		INSERT INTO escrow_accounts (
			id, contract_id, creator_id, freelancer_id, balance, expected_amount,
			currency, status, locked, created_at, updated_at
		) VALUES (
			:id, :contract_id, :creator_id, :freelancer_id, :balance, :expected_amount,
			:currency, :status, :locked, :created_at, :updated_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.db, query, escrow)
	if isUniqueViolation(err) {
		return errors.ErrDuplicateReference
	}
	return errors.Wrap(err, "failed to create escrow account")
}

// UpdateFrom persists an escrow mutation conditioned on the status the
// caller loaded, so racing release/dispute attempts cannot both land.
func (r *EscrowRepository) UpdateFrom(ctx context.Context, escrow domain.EscrowAccount, from domain.EscrowStatus) error {
	query := `
		UPDATE escrow_accounts SET
			balance = :balance,
			status = :status,
			locked = :locked,
			updated_at = :updated_at
		WHERE id = :id AND status = :prev_status
	`
	arg := struct {
		domain.EscrowAccount
		PrevStatus domain.EscrowStatus `db:"prev_status"`
	}{EscrowAccount: escrow, PrevStatus: from}

	result, err := sqlx.NamedExecContext(ctx, r.db, query, arg)
	if err != nil {
		return errors.Wrap(err, "failed to update escrow account")
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

func (r *EscrowRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.EscrowAccount, error) {
	return r.findOne(ctx, `SELECT * FROM escrow_accounts WHERE id = $1`, id)
}

func (r *EscrowRepository) FindByContractID(ctx context.Context, contractID uuid.UUID) (domain.EscrowAccount, error) {
	return r.findOne(ctx, `SELECT * FROM escrow_accounts WHERE contract_id = $1`, contractID)
}

func (r *EscrowRepository) findOne(ctx context.Context, query string, arg interface{}) (domain.EscrowAccount, error) {
	var escrow domain.EscrowAccount
	err := sqlx.GetContext(ctx, r.db, &escrow, query, arg)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.EscrowAccount{}, errors.ErrEscrowNotFound
		}
		return domain.EscrowAccount{}, errors.Wrap(err, "failed to find escrow account")
	}
	return escrow, nil
}
