package wallet

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigpay/internal/domain"
	pkgerrors "gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

type memWalletRepo struct {
	wallets map[uuid.UUID]domain.Wallet
}

func newMemWalletRepo() *memWalletRepo {
	return &memWalletRepo{wallets: make(map[uuid.UUID]domain.Wallet)}
}

func (r *memWalletRepo) Create(ctx context.Context, w domain.Wallet) error {
	for _, existing := range r.wallets {
		if existing.UserID == w.UserID {
			return pkgerrors.ErrWalletAlreadyExists
		}
	}
	r.wallets[w.ID] = w
	return nil
}

func (r *memWalletRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Wallet, error) {
	w, ok := r.wallets[id]
	if !ok {
		return domain.Wallet{}, pkgerrors.ErrWalletNotFound
	}
	return w, nil
}

func (r *memWalletRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (domain.Wallet, error) {
	for _, w := range r.wallets {
		if w.UserID == userID {
			return w, nil
		}
	}
	return domain.Wallet{}, pkgerrors.ErrWalletNotFound
}

func (r *memWalletRepo) UpdateCAS(ctx context.Context, w domain.Wallet) error {
	existing, ok := r.wallets[w.ID]
	if !ok || existing.Version != w.Version-1 {
		return pkgerrors.ErrConcurrencyConflict
	}
	r.wallets[w.ID] = w
	return nil
}

type memTransactionRepo struct {
	txs []domain.Transaction

	// captured arguments of the last FindByWalletID call
	lastLimit  int
	lastOffset int
}

func (r *memTransactionRepo) Create(ctx context.Context, tx domain.Transaction) error {
	r.txs = append(r.txs, tx)
	return nil
}

func (r *memTransactionRepo) FindBySystemReference(ctx context.Context, ref string) (domain.Transaction, error) {
	for _, tx := range r.txs {
		if tx.SystemReference == ref {
			return tx, nil
		}
	}
	return domain.Transaction{}, pkgerrors.ErrTransactionNotFound
}

func (r *memTransactionRepo) FindByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	r.lastLimit = limit
	r.lastOffset = offset
	var out []domain.Transaction
	for _, tx := range r.txs {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func newTestService() (*Service, *memWalletRepo, *memTransactionRepo) {
	wallets := newMemWalletRepo()
	txs := &memTransactionRepo{}
	return NewService(wallets, txs, logger.NewNop()), wallets, txs
}

func TestCreateWallet(t *testing.T) {
	svc, _, _ := newTestService()
	userID := uuid.New()

	w, err := svc.CreateWallet(context.Background(), &CreateWalletRequest{
		UserID:   userID,
		Currency: domain.NGN,
	})
	require.NoError(t, err)

	assert.Equal(t, userID, w.UserID)
	assert.Equal(t, domain.NGN, w.Currency)
	assert.Equal(t, int64(0), w.Balance)
	assert.Equal(t, domain.WalletStatusActive, w.Status)
}

func TestCreateWallet_OnePerUser(t *testing.T) {
	svc, _, _ := newTestService()
	req := &CreateWalletRequest{UserID: uuid.New(), Currency: domain.NGN}

	_, err := svc.CreateWallet(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.CreateWallet(context.Background(), req)
	assert.ErrorIs(t, err, pkgerrors.ErrWalletAlreadyExists)
}

func TestGetBalance(t *testing.T) {
	svc, wallets, _ := newTestService()

	w := domain.NewWallet(uuid.New(), domain.NGN)
	w, err := w.Fund(150_000, 0)
	require.NoError(t, err)
	w, err = w.Reserve(50_000)
	require.NoError(t, err)
	wallets.wallets[w.ID] = w

	balance, err := svc.GetBalance(context.Background(), w.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(150_000), balance.Balance)
	assert.Equal(t, int64(50_000), balance.Reserved)
	assert.Equal(t, int64(100_000), balance.Available)
}

func TestGetBalance_NotFound(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.GetBalance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, pkgerrors.ErrWalletNotFound)
}

func TestGetStatement(t *testing.T) {
	svc, wallets, txRepo := newTestService()

	w := domain.NewWallet(uuid.New(), domain.NGN)
	wallets.wallets[w.ID] = w

	row, err := domain.NewTransaction(w.ID, nil, domain.TransactionTypeCredit, 100_000, domain.NGN, "GP-stmt-1", domain.SourceTopUp)
	require.NoError(t, err)
	require.NoError(t, txRepo.Create(context.Background(), row))

	stmt, err := svc.GetStatement(context.Background(), w.UserID, w.ID, 20, 0)
	require.NoError(t, err)
	require.Len(t, stmt, 1)
	assert.Equal(t, "GP-stmt-1", stmt[0].SystemReference)
	assert.Equal(t, 20, txRepo.lastLimit)
}

func TestGetStatement_NotOwner(t *testing.T) {
	svc, wallets, _ := newTestService()

	w := domain.NewWallet(uuid.New(), domain.NGN)
	wallets.wallets[w.ID] = w

	_, err := svc.GetStatement(context.Background(), uuid.New(), w.ID, 50, 0)
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthorizedAccess)
}

func TestGetStatement_ClampsPagination(t *testing.T) {
	svc, wallets, txRepo := newTestService()

	w := domain.NewWallet(uuid.New(), domain.NGN)
	wallets.wallets[w.ID] = w

	_, err := svc.GetStatement(context.Background(), w.UserID, w.ID, 10_000, -5)
	require.NoError(t, err)
	assert.Equal(t, 50, txRepo.lastLimit)
	assert.Equal(t, 0, txRepo.lastOffset)
}
