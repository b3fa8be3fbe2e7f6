package escrow

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigpay/internal/domain"
	"gigpay/internal/events"
	"gigpay/internal/ledger"
	"gigpay/internal/notification"
	pkgerrors "gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

// In-memory fakes with the postgres adapters' contract: wallet CAS, escrow
// updates conditioned on the previous status, unique ledger references and
// all-or-nothing units of work.
type memStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]domain.Wallet
	escrows map[uuid.UUID]domain.EscrowAccount
	txs     []domain.Transaction
}

func newMemStore() *memStore {
	return &memStore{
		wallets: make(map[uuid.UUID]domain.Wallet),
		escrows: make(map[uuid.UUID]domain.EscrowAccount),
	}
}

func (s *memStore) snapshot() *memStore {
	cp := newMemStore()
	for k, v := range s.wallets {
		cp.wallets[k] = v
	}
	for k, v := range s.escrows {
		cp.escrows[k] = v
	}
	cp.txs = append(cp.txs, s.txs...)
	return cp
}

func (s *memStore) restore(from *memStore) {
	s.wallets = from.wallets
	s.escrows = from.escrows
	s.txs = from.txs
}

type memWalletRepo struct{ store *memStore }

func (r *memWalletRepo) Create(ctx context.Context, w domain.Wallet) error {
	r.store.wallets[w.ID] = w
	return nil
}

func (r *memWalletRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Wallet, error) {
	w, ok := r.store.wallets[id]
	if !ok {
		return domain.Wallet{}, pkgerrors.ErrWalletNotFound
	}
	return w, nil
}

func (r *memWalletRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (domain.Wallet, error) {
	for _, w := range r.store.wallets {
		if w.UserID == userID {
			return w, nil
		}
	}
	return domain.Wallet{}, pkgerrors.ErrWalletNotFound
}

func (r *memWalletRepo) UpdateCAS(ctx context.Context, w domain.Wallet) error {
	existing, ok := r.store.wallets[w.ID]
	if !ok || existing.Version != w.Version-1 {
		return pkgerrors.ErrConcurrencyConflict
	}
	r.store.wallets[w.ID] = w
	return nil
}

type memEscrowRepo struct{ store *memStore }

func (r *memEscrowRepo) Create(ctx context.Context, e domain.EscrowAccount) error {
	for _, existing := range r.store.escrows {
		if existing.ContractID == e.ContractID {
			return pkgerrors.ErrDuplicateReference
		}
	}
	r.store.escrows[e.ID] = e
	return nil
}

func (r *memEscrowRepo) UpdateFrom(ctx context.Context, e domain.EscrowAccount, from domain.EscrowStatus) error {
	existing, ok := r.store.escrows[e.ID]
	if !ok || existing.Status != from {
		return pkgerrors.ErrConcurrencyConflict
	}
	r.store.escrows[e.ID] = e
	return nil
}

func (r *memEscrowRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.EscrowAccount, error) {
	e, ok := r.store.escrows[id]
	if !ok {
		return domain.EscrowAccount{}, pkgerrors.ErrEscrowNotFound
	}
	return e, nil
}

func (r *memEscrowRepo) FindByContractID(ctx context.Context, contractID uuid.UUID) (domain.EscrowAccount, error) {
	for _, e := range r.store.escrows {
		if e.ContractID == contractID {
			return e, nil
		}
	}
	return domain.EscrowAccount{}, pkgerrors.ErrEscrowNotFound
}

type memTransactionRepo struct{ store *memStore }

func (r *memTransactionRepo) Create(ctx context.Context, tx domain.Transaction) error {
	for _, existing := range r.store.txs {
		if existing.SystemReference == tx.SystemReference {
			return pkgerrors.ErrDuplicateReference
		}
	}
	r.store.txs = append(r.store.txs, tx)
	return nil
}

func (r *memTransactionRepo) FindBySystemReference(ctx context.Context, ref string) (domain.Transaction, error) {
	for _, tx := range r.store.txs {
		if tx.SystemReference == ref {
			return tx, nil
		}
	}
	return domain.Transaction{}, pkgerrors.ErrTransactionNotFound
}

func (r *memTransactionRepo) FindByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, tx := range r.store.txs {
		if tx.WalletID == walletID {
			out = append(out, tx)
		}
	}
	return out, nil
}

type memPaymentRepo struct{}

func (r *memPaymentRepo) Create(ctx context.Context, p domain.Payment) error { return nil }
func (r *memPaymentRepo) UpdateFrom(ctx context.Context, p domain.Payment, from domain.PaymentStatus) error {
	return nil
}
func (r *memPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	return domain.Payment{}, pkgerrors.ErrPaymentNotFound
}
func (r *memPaymentRepo) FindBySystemReference(ctx context.Context, ref string) (domain.Payment, error) {
	return domain.Payment{}, pkgerrors.ErrPaymentNotFound
}
func (r *memPaymentRepo) FindByProviderReference(ctx context.Context, ref string) (domain.Payment, error) {
	return domain.Payment{}, pkgerrors.ErrPaymentNotFound
}
func (r *memPaymentRepo) FindByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Payment, error) {
	return nil, nil
}

type memOps struct{ store *memStore }

func (o *memOps) Wallets() ledger.WalletRepository           { return &memWalletRepo{o.store} }
func (o *memOps) Payments() ledger.PaymentRepository         { return &memPaymentRepo{} }
func (o *memOps) Escrows() ledger.EscrowRepository           { return &memEscrowRepo{o.store} }
func (o *memOps) Transactions() ledger.TransactionRepository { return &memTransactionRepo{o.store} }

type memUnitOfWork struct{ store *memStore }

func (u *memUnitOfWork) Execute(ctx context.Context, fn func(ops ledger.Ops) error) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	before := u.store.snapshot()
	if err := fn(&memOps{u.store}); err != nil {
		u.store.restore(before)
		return err
	}
	return nil
}

type escrowFixture struct {
	store        *memStore
	service      *Service
	creatorID    uuid.UUID
	freelancerID uuid.UUID
	clientWallet domain.Wallet
	payoutWallet domain.Wallet
}

func newFixture(t *testing.T, clientBalance int64) *escrowFixture {
	t.Helper()

	store := newMemStore()
	creatorID := uuid.New()
	freelancerID := uuid.New()

	cw := domain.NewWallet(creatorID, domain.NGN)
	if clientBalance > 0 {
		var err error
		cw, err = cw.Fund(clientBalance, 0)
		require.NoError(t, err)
	}
	fw := domain.NewWallet(freelancerID, domain.NGN)
	store.wallets[cw.ID] = cw
	store.wallets[fw.ID] = fw

	svc := NewService(
		&memWalletRepo{store},
		&memEscrowRepo{store},
		&memUnitOfWork{store},
		events.NopPublisher{},
		notification.NopService{},
		logger.NewNop(),
	)

	return &escrowFixture{
		store:        store,
		service:      svc,
		creatorID:    creatorID,
		freelancerID: freelancerID,
		clientWallet: cw,
		payoutWallet: fw,
	}
}

func (f *escrowFixture) createEscrow(t *testing.T, amount int64) domain.EscrowAccount {
	t.Helper()
	esc, err := f.service.CreateEscrow(context.Background(), f.creatorID, &CreateEscrowRequest{
		ContractID:   uuid.New(),
		FreelancerID: f.freelancerID,
		Amount:       amount,
		Currency:     domain.NGN,
	})
	require.NoError(t, err)
	return esc
}

func TestCreateEscrow(t *testing.T) {
	f := newFixture(t, 0)

	esc := f.createEscrow(t, 200_000)

	assert.Equal(t, domain.EscrowStatusHeld, esc.Status)
	assert.True(t, esc.Locked)
	assert.Equal(t, int64(0), esc.Balance)
	assert.Equal(t, int64(200_000), esc.ExpectedAmount)
}

func TestCreateEscrow_DuplicateContract(t *testing.T) {
	f := newFixture(t, 0)
	contractID := uuid.New()

	req := &CreateEscrowRequest{
		ContractID:   contractID,
		FreelancerID: f.freelancerID,
		Amount:       200_000,
		Currency:     domain.NGN,
	}
	_, err := f.service.CreateEscrow(context.Background(), f.creatorID, req)
	require.NoError(t, err)

	_, err = f.service.CreateEscrow(context.Background(), f.creatorID, req)
	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateReference)
}

func TestFundEscrow(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)

	funded, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(200_000), funded.Balance)
	assert.Equal(t, int64(300_000), f.store.wallets[f.clientWallet.ID].Balance)

	require.Len(t, f.store.txs, 1)
	row := f.store.txs[0]
	assert.Equal(t, domain.TransactionTypeDebit, row.Type)
	assert.Equal(t, domain.SourceEscrowFunding, row.Source)
	assert.Equal(t, "GP-ESC-"+esc.ContractID.String()+":funding", row.SystemReference)
}

func TestFundEscrow_NotCreator(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)

	_, err := f.service.FundEscrow(context.Background(), f.freelancerID, esc.ID, f.clientWallet.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthorizedAccess)
	assert.Equal(t, int64(500_000), f.store.wallets[f.clientWallet.ID].Balance)
}

func TestFundEscrow_WalletNotOwned(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)

	// Creator tries to pay out of the freelancer's wallet.
	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.payoutWallet.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthorizedAccess)
}

func TestFundEscrow_CurrencyMismatch(t *testing.T) {
	f := newFixture(t, 500_000)

	esc, err := f.service.CreateEscrow(context.Background(), f.creatorID, &CreateEscrowRequest{
		ContractID:   uuid.New(),
		FreelancerID: f.freelancerID,
		Amount:       200_000,
		Currency:     domain.GHS,
	})
	require.NoError(t, err)

	// The creator's wallet holds NGN; minor units never convert.
	_, err = f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrCurrencyMismatch)
	assert.Equal(t, int64(500_000), f.store.wallets[f.clientWallet.ID].Balance)
	assert.Equal(t, int64(0), f.store.escrows[esc.ID].Balance)
	assert.Empty(t, f.store.txs)
}

func TestReleaseEscrow_CurrencyMismatch(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)
	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	require.NoError(t, err)

	kes := f.payoutWallet
	kes.Currency = domain.KES
	f.store.wallets[kes.ID] = kes

	_, err = f.service.ReleaseEscrow(context.Background(), f.creatorID, esc.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrCurrencyMismatch)

	// The release aborted whole: escrow still held, freelancer uncredited.
	assert.Equal(t, domain.EscrowStatusHeld, f.store.escrows[esc.ID].Status)
	assert.Equal(t, int64(200_000), f.store.escrows[esc.ID].Balance)
	assert.Equal(t, int64(0), f.store.wallets[kes.ID].Balance)
	assert.Len(t, f.store.txs, 1)
}

func TestFundEscrow_InsufficientBalance(t *testing.T) {
	f := newFixture(t, 100_000)
	esc := f.createEscrow(t, 200_000)

	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientBalance)
	assert.Equal(t, int64(0), f.store.escrows[esc.ID].Balance)
	assert.Empty(t, f.store.txs)
}

func TestFundEscrow_AlreadyFunded(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)

	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	require.NoError(t, err)

	_, err = f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidEscrowState)

	// Only the first funding moved money.
	assert.Equal(t, int64(300_000), f.store.wallets[f.clientWallet.ID].Balance)
	assert.Len(t, f.store.txs, 1)
}

func TestReleaseEscrow(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)
	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	require.NoError(t, err)

	released, err := f.service.ReleaseEscrow(context.Background(), f.creatorID, esc.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.EscrowStatusReleased, released.Status)
	assert.Equal(t, int64(0), released.Balance)
	assert.False(t, released.Locked)
	assert.Equal(t, int64(200_000), f.store.wallets[f.payoutWallet.ID].Balance)

	require.Len(t, f.store.txs, 2)
	credit := f.store.txs[1]
	assert.Equal(t, domain.TransactionTypeCredit, credit.Type)
	assert.Equal(t, domain.SourceEscrowRelease, credit.Source)
	assert.Equal(t, "GP-ESC-"+esc.ContractID.String()+":release", credit.SystemReference)
}

func TestReleaseEscrow_ExactlyOnce(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)
	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	require.NoError(t, err)

	_, err = f.service.ReleaseEscrow(context.Background(), f.creatorID, esc.ID)
	require.NoError(t, err)

	_, err = f.service.ReleaseEscrow(context.Background(), f.creatorID, esc.ID)
	require.Error(t, err)
	assert.Equal(t, int64(200_000), f.store.wallets[f.payoutWallet.ID].Balance)
	assert.Len(t, f.store.txs, 2)
}

func TestReleaseEscrow_NotFunded(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)

	_, err := f.service.ReleaseEscrow(context.Background(), f.creatorID, esc.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidEscrowState)
	assert.Equal(t, int64(0), f.store.wallets[f.payoutWallet.ID].Balance)
}

func TestReleaseEscrow_OnlyCreator(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)
	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	require.NoError(t, err)

	_, err = f.service.ReleaseEscrow(context.Background(), f.freelancerID, esc.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthorizedAccess)
}

func TestDisputeEscrow(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)
	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	require.NoError(t, err)

	disputed, err := f.service.DisputeEscrow(context.Background(), f.freelancerID, esc.ID, "deliverable rejected")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusDisputed, disputed.Status)
	// The held balance stays put until the dispute resolves.
	assert.Equal(t, int64(200_000), disputed.Balance)
}

func TestDisputeEscrow_ThirdPartyRejected(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)

	_, err := f.service.DisputeEscrow(context.Background(), uuid.New(), esc.ID, "nosy")
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthorizedAccess)
}

func TestReleaseEscrow_FromDispute(t *testing.T) {
	f := newFixture(t, 500_000)
	esc := f.createEscrow(t, 200_000)
	_, err := f.service.FundEscrow(context.Background(), f.creatorID, esc.ID, f.clientWallet.ID)
	require.NoError(t, err)
	_, err = f.service.DisputeEscrow(context.Background(), f.freelancerID, esc.ID, "deliverable rejected")
	require.NoError(t, err)

	released, err := f.service.ReleaseEscrow(context.Background(), f.creatorID, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStatusReleased, released.Status)
	assert.Equal(t, int64(200_000), f.store.wallets[f.payoutWallet.ID].Balance)
}

func TestGetEscrow_PartiesOnly(t *testing.T) {
	f := newFixture(t, 0)
	esc := f.createEscrow(t, 200_000)

	_, err := f.service.GetEscrow(context.Background(), f.creatorID, esc.ID)
	assert.NoError(t, err)
	_, err = f.service.GetEscrow(context.Background(), f.freelancerID, esc.ID)
	assert.NoError(t, err)
	_, err = f.service.GetEscrow(context.Background(), uuid.New(), esc.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthorizedAccess)
}

func TestGetEscrowByContract(t *testing.T) {
	f := newFixture(t, 0)
	esc := f.createEscrow(t, 200_000)

	found, err := f.service.GetEscrowByContract(context.Background(), f.creatorID, esc.ContractID)
	require.NoError(t, err)
	assert.Equal(t, esc.ID, found.ID)

	_, err = f.service.GetEscrowByContract(context.Background(), f.creatorID, uuid.New())
	assert.ErrorIs(t, err, pkgerrors.ErrEscrowNotFound)
}
