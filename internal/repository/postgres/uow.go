package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"gigpay/internal/ledger"
	"gigpay/pkg/errors"
)

// UnitOfWork implements ledger.UnitOfWork over a database transaction.
type UnitOfWork struct {
	db *sqlx.DB
}

func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Execute runs fn against repositories bound to one transaction. If fn
// returns an error the transaction is rolled back and nothing is applied;
// otherwise everything commits together.
func (u *UnitOfWork) Execute(ctx context.Context, fn func(ops ledger.Ops) error) error {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	// Rollback is a no-op once the transaction committed.
	defer func() {
		_ = tx.Rollback()
	}()

	ops := &txOps{
		wallets:      NewWalletRepository(u.db).withTx(tx),
		payments:     NewPaymentRepository(u.db).withTx(tx),
		escrows:      NewEscrowRepository(u.db).withTx(tx),
		transactions: NewTransactionRepository(u.db).withTx(tx),
	}

	if err := fn(ops); err != nil {
		return err
	}

	return errors.Wrap(tx.Commit(), "failed to commit transaction")
}

type txOps struct {
	wallets      *WalletRepository
	payments     *PaymentRepository
	escrows      *EscrowRepository
	transactions *TransactionRepository
}

func (o *txOps) Wallets() ledger.WalletRepository           { return o.wallets }
func (o *txOps) Payments() ledger.PaymentRepository         { return o.payments }
func (o *txOps) Escrows() ledger.EscrowRepository           { return o.escrows }
func (o *txOps) Transactions() ledger.TransactionRepository { return o.transactions }
