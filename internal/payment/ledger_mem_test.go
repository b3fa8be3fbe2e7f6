package payment

// In-memory ledger fakes with the same contract as the postgres adapters:
// compare-and-swap on wallet versions, status-conditioned payment updates,
// reference uniqueness on ledger rows, and all-or-nothing units of work.

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"gigpay/internal/domain"
	"gigpay/internal/gateway"
	"gigpay/internal/ledger"
	pkgerrors "gigpay/pkg/errors"
)

type memStore struct {
	mu       sync.Mutex
	wallets  map[uuid.UUID]domain.Wallet
	payments map[uuid.UUID]domain.Payment
	txs      []domain.Transaction
}

func newMemStore() *memStore {
	return &memStore{
		wallets:  make(map[uuid.UUID]domain.Wallet),
		payments: make(map[uuid.UUID]domain.Payment),
	}
}

func (s *memStore) putWallet(w domain.Wallet)   { s.wallets[w.ID] = w }
func (s *memStore) putPayment(p domain.Payment) { s.payments[p.ID] = p }

func (s *memStore) snapshot() *memStore {
	cp := newMemStore()
	for k, v := range s.wallets {
		cp.wallets[k] = v
	}
	for k, v := range s.payments {
		cp.payments[k] = v
	}
	cp.txs = append(cp.txs, s.txs...)
	return cp
}

func (s *memStore) restore(from *memStore) {
	s.wallets = from.wallets
	s.payments = from.payments
	s.txs = from.txs
}

type memWalletRepo struct{ store *memStore }

func (r *memWalletRepo) Create(ctx context.Context, w domain.Wallet) error {
	for _, existing := range r.store.wallets {
		if existing.UserID == w.UserID {
			return pkgerrors.ErrWalletAlreadyExists
		}
	}
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

type memPaymentRepo struct{ store *memStore }

func (r *memPaymentRepo) Create(ctx context.Context, p domain.Payment) error {
	for _, existing := range r.store.payments {
		if existing.SystemReference == p.SystemReference {
			return pkgerrors.ErrDuplicateReference
		}
	}
	r.store.payments[p.ID] = p
	return nil
}

func (r *memPaymentRepo) UpdateFrom(ctx context.Context, p domain.Payment, from domain.PaymentStatus) error {
	existing, ok := r.store.payments[p.ID]
	if !ok || existing.Status != from {
		return pkgerrors.ErrConcurrencyConflict
	}
	r.store.payments[p.ID] = p
	return nil
}

func (r *memPaymentRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	p, ok := r.store.payments[id]
	if !ok {
		return domain.Payment{}, pkgerrors.ErrPaymentNotFound
	}
	return p, nil
}

func (r *memPaymentRepo) FindBySystemReference(ctx context.Context, ref string) (domain.Payment, error) {
	for _, p := range r.store.payments {
		if p.SystemReference == ref {
			return p, nil
		}
	}
	return domain.Payment{}, pkgerrors.ErrPaymentNotFound
}

func (r *memPaymentRepo) FindByProviderReference(ctx context.Context, ref string) (domain.Payment, error) {
	for _, p := range r.store.payments {
		if p.ProviderReference != nil && *p.ProviderReference == ref {
			return p, nil
		}
	}
	return domain.Payment{}, pkgerrors.ErrPaymentNotFound
}

func (r *memPaymentRepo) FindByWalletID(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range r.store.payments {
		if p.WalletID == walletID {
			out = append(out, p)
		}
	}
	return out, nil
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

type memEscrowRepo struct{}

func (r *memEscrowRepo) Create(ctx context.Context, e domain.EscrowAccount) error { return nil }
func (r *memEscrowRepo) UpdateFrom(ctx context.Context, e domain.EscrowAccount, from domain.EscrowStatus) error {
	return nil
}
func (r *memEscrowRepo) FindByID(ctx context.Context, id uuid.UUID) (domain.EscrowAccount, error) {
	return domain.EscrowAccount{}, pkgerrors.ErrEscrowNotFound
}
func (r *memEscrowRepo) FindByContractID(ctx context.Context, id uuid.UUID) (domain.EscrowAccount, error) {
	return domain.EscrowAccount{}, pkgerrors.ErrEscrowNotFound
}

type memOps struct{ store *memStore }

func (o *memOps) Wallets() ledger.WalletRepository           { return &memWalletRepo{o.store} }
func (o *memOps) Payments() ledger.PaymentRepository         { return &memPaymentRepo{o.store} }
func (o *memOps) Escrows() ledger.EscrowRepository           { return &memEscrowRepo{} }
func (o *memOps) Transactions() ledger.TransactionRepository { return &memTransactionRepo{o.store} }

// memUnitOfWork rolls the whole store back when fn fails, mirroring the
// transactional adapter.
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

// MockGateway is a testify mock for the provider port.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitializeTransaction(ctx context.Context, req *gateway.InitializeRequest) (*gateway.InitializeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitializeResponse), args.Error(1)
}

func (m *MockGateway) VerifyTransaction(ctx context.Context, reference string) (*gateway.VerifyResponse, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.VerifyResponse), args.Error(1)
}

func (m *MockGateway) InitiateTransfer(ctx context.Context, req *gateway.TransferRequest) (*gateway.TransferResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.TransferResponse), args.Error(1)
}

func (m *MockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	args := m.Called(body, signature)
	return args.Bool(0)
}
