package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gigpay/internal/domain"
	"gigpay/pkg/errors"
)

// TransactionRepository implements the append-only ledger log. There is no
// update or delete path on purpose.
type TransactionRepository struct {
	db sqlx.ExtContext
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) withTx(tx *sqlx.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

func (r *TransactionRepository) Create(ctx context.Context, tx domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, wallet_id, payment_id, type, amount, currency, status,
			system_reference, provider_reference, source, metadata, created_at
		) VALUES (
			:id, :wallet_id, :payment_id, :type, :amount, :currency, :status,
			:system_reference, :provider_reference, :source, :metadata, :created_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.db, query, tx)
	if isUniqueViolation(err) {
		return errors.ErrDuplicateReference
	}
	return errors.Wrap(err, "failed to append ledger transaction")
}

func (r *TransactionRepository) FindBySystemReference(ctx context.Context, ref string) (domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT * FROM transactions WHERE system_reference = $1`
	err := sqlx.GetContext(ctx, r.db, &tx, query, ref)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Transaction{}, errors.ErrTransactionNotFound
		}
		return domain.Transaction{}, errors.Wrap(err, "failed to find ledger transaction")
	}
	return tx, nil
}

func (r *TransactionRepository) FindByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	query := `SELECT * FROM transactions WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	err := sqlx.SelectContext(ctx, r.db, &txs, query, walletID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ledger transactions")
	}
	return txs, nil
}
