// Package ledger defines the persistence ports and transactional boundary
// for the financial core: wallets, payments, escrow accounts and the
// append-only transaction log.
package ledger

import (
	"context"

	"github.com/google/uuid"

	"gigpay/internal/domain"
)

// WalletRepository persists wallets under optimistic concurrency. UpdateCAS
// is a compare-and-swap: the write succeeds only if no other writer advanced
// the wallet's version since it was read, otherwise it returns
// errors.ErrConcurrencyConflict. Conflict handling is ordinary control flow,
// not an exception to be caught.
type WalletRepository interface {
	Create(ctx context.Context, wallet domain.Wallet) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.Wallet, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (domain.Wallet, error)
	UpdateCAS(ctx context.Context, wallet domain.Wallet) error
}

// PaymentRepository persists gateway transaction attempts. Create surfaces
// reference uniqueness violations as errors.ErrDuplicateReference.
// UpdateFrom conditions the write on the status the caller read, so a lost
// race against a concurrent terminal transition fails instead of clobbering.
type PaymentRepository interface {
	Create(ctx context.Context, payment domain.Payment) error
	UpdateFrom(ctx context.Context, payment domain.Payment, from domain.PaymentStatus) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.Payment, error)
	FindBySystemReference(ctx context.Context, ref string) (domain.Payment, error)
	FindByProviderReference(ctx context.Context, ref string) (domain.Payment, error)
	FindByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Payment, error)
}

// EscrowRepository persists contract escrow accounts, unique per contract.
type EscrowRepository interface {
	Create(ctx context.Context, escrow domain.EscrowAccount) error
	UpdateFrom(ctx context.Context, escrow domain.EscrowAccount, from domain.EscrowStatus) error
	FindByID(ctx context.Context, id uuid.UUID) (domain.EscrowAccount, error)
	FindByContractID(ctx context.Context, contractID uuid.UUID) (domain.EscrowAccount, error)
}

// TransactionRepository is append-only: ledger rows are created, never
// updated or deleted.
type TransactionRepository interface {
	Create(ctx context.Context, tx domain.Transaction) error
	FindBySystemReference(ctx context.Context, ref string) (domain.Transaction, error)
	FindByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
}

// Ops exposes repositories bound to one transaction.
type Ops interface {
	Wallets() WalletRepository
	Payments() PaymentRepository
	Escrows() EscrowRepository
	Transactions() TransactionRepository
}

// UnitOfWork runs fn against a transactional handle. All repository writes
// performed through ops commit together, or none do: any error returned by
// fn, including a failed invariant check, rolls the whole unit back. Every
// multi-aggregate business operation must run inside exactly one unit.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ops Ops) error) error
}
