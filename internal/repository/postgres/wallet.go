package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"gigpay/internal/domain"
	"gigpay/pkg/errors"
)

// WalletRepository implements ledger.WalletRepository over sqlx.
// The same code runs on the pool or inside a transaction via withTx.
type WalletRepository struct {
	db sqlx.ExtContext
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) withTx(tx *sqlx.Tx) *WalletRepository {
	return &WalletRepository{db: tx}
}

func (r *WalletRepository) Create(ctx context.Context, wallet domain.Wallet) error {
	query := `
		INSERT INTO wallets (
			id, user_id, status, balance, reserved, currency, version, created_at, updated_at
		) VALUES (
			:id, :user_id, :status, :balance, :reserved, :currency, :version, :created_at, :updated_at
		)
	`
	_, err := sqlx.NamedExecContext(ctx, r.db, query, wallet)
	if isUniqueViolation(err) {
		return errors.ErrWalletAlreadyExists
	}
	return errors.Wrap(err, "failed to create wallet")
}

func (r *WalletRepository) FindByID(ctx context.Context, id uuid.UUID) (domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT * FROM wallets WHERE id = $1`
	err := sqlx.GetContext(ctx, r.db, &wallet, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Wallet{}, errors.ErrWalletNotFound
		}
		return domain.Wallet{}, errors.Wrap(err, "failed to find wallet by id")
	}
	return wallet, nil
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (domain.Wallet, error) {
	var wallet domain.Wallet
	query := `SELECT * FROM wallets WHERE user_id = $1`
	err := sqlx.GetContext(ctx, r.db, &wallet, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Wallet{}, errors.ErrWalletNotFound
		}
		return domain.Wallet{}, errors.Wrap(err, "failed to find wallet by user id")
	}
	return wallet, nil
}

// UpdateCAS writes a mutated wallet conditioned on the version the caller
// read. The domain transition already advanced wallet.Version by one, so the
// row must still hold wallet.Version-1 for the write to land. Zero rows
// affected means another writer got there first.
func (r *WalletRepository) UpdateCAS(ctx context.Context, wallet domain.Wallet) error {
	query := `
		UPDATE wallets SET
			status = :status,
			balance = :balance,
			reserved = :reserved,
			version = :version,
			updated_at = :updated_at
		WHERE id = :id AND version = :version - 1
	`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, wallet)
	if err != nil {
		return errors.Wrap(err, "failed to update wallet")
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
