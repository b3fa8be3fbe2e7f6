package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gigpay/internal/domain"
	"gigpay/internal/events"
	"gigpay/internal/gateway"
	"gigpay/internal/notification"
	"gigpay/pkg/config"
	pkgerrors "gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

type serviceFixture struct {
	store   *memStore
	gateway *MockGateway
	service *Service
	userID  uuid.UUID
	wallet  domain.Wallet
}

func newFixture(t *testing.T, balance int64) *serviceFixture {
	t.Helper()

	store := newMemStore()
	userID := uuid.New()
	w := domain.NewWallet(userID, domain.NGN)
	if balance > 0 {
		var err error
		w, err = w.Fund(balance, 0)
		require.NoError(t, err)
	}
	store.putWallet(w)

	gw := new(MockGateway)
	cfg := &config.Config{}
	cfg.Wallet.MaxSingleDeposit = 50_000_000
	cfg.Gateway.CallbackURL = "https://app.gigpay.test/callback"

	svc := NewService(
		&memWalletRepo{store},
		&memPaymentRepo{store},
		&memUnitOfWork{store},
		gw,
		events.NopPublisher{},
		notification.NopService{},
		logger.NewNop(),
		cfg,
	)

	return &serviceFixture{store: store, gateway: gw, service: svc, userID: userID, wallet: w}
}

func (f *serviceFixture) currentWallet() domain.Wallet {
	return f.store.wallets[f.wallet.ID]
}

func TestInitiateTopUp(t *testing.T) {
	f := newFixture(t, 0)
	f.gateway.On("InitializeTransaction", mock.Anything, mock.Anything).Return(&gateway.InitializeResponse{
		AuthorizationURL: "https://checkout.paystack.com/abc",
		Reference:        "PS_ref_1",
		AccessCode:       "access_1",
	}, nil)

	resp, err := f.service.InitiateTopUp(context.Background(), f.userID, &InitiateTopUpRequest{
		WalletID: f.wallet.ID,
		Amount:   100_000,
		Email:    "client@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.paystack.com/abc", resp.AuthorizationURL)
	assert.Equal(t, domain.PaymentStatusPending, resp.Payment.Status)
	require.NotNil(t, resp.Payment.ProviderReference)
	assert.Equal(t, "PS_ref_1", *resp.Payment.ProviderReference)

	// Wallet untouched until settlement
	assert.Equal(t, int64(0), f.currentWallet().Balance)
	assert.Empty(t, f.store.txs)
}

func TestInitiateTopUp_OwnershipEnforced(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.service.InitiateTopUp(context.Background(), uuid.New(), &InitiateTopUpRequest{
		WalletID: f.wallet.ID,
		Amount:   100_000,
		Email:    "intruder@example.com",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrUnauthorizedAccess)
	f.gateway.AssertNotCalled(t, "InitializeTransaction", mock.Anything, mock.Anything)
}

func TestInitiateTopUp_DepositCap(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.service.InitiateTopUp(context.Background(), f.userID, &InitiateTopUpRequest{
		WalletID: f.wallet.ID,
		Amount:   50_000_001,
		Email:    "client@example.com",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrDepositCapExceeded)
	f.gateway.AssertNotCalled(t, "InitializeTransaction", mock.Anything, mock.Anything)
}

func TestInitiateTopUp_GatewayFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, 0)
	f.gateway.On("InitializeTransaction", mock.Anything, mock.Anything).Return(nil, pkgerrors.ErrGatewayFailure)

	_, err := f.service.InitiateTopUp(context.Background(), f.userID, &InitiateTopUpRequest{
		WalletID: f.wallet.ID,
		Amount:   100_000,
		Email:    "client@example.com",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrGatewayFailure)
	assert.Empty(t, f.store.payments)
	assert.Empty(t, f.store.txs)
}

func TestVerifyTopUp_SettlesSuccessfulCharge(t *testing.T) {
	f := newFixture(t, 0)
	f.gateway.On("InitializeTransaction", mock.Anything, mock.Anything).Return(&gateway.InitializeResponse{
		Reference: "PS_ref_1",
	}, nil)

	resp, err := f.service.InitiateTopUp(context.Background(), f.userID, &InitiateTopUpRequest{
		WalletID: f.wallet.ID,
		Amount:   100_000,
		Email:    "client@example.com",
	})
	require.NoError(t, err)
	ref := resp.Payment.SystemReference

	f.gateway.On("VerifyTransaction", mock.Anything, ref).Return(&gateway.VerifyResponse{
		Amount:   100_000,
		Status:   "success",
		Currency: "NGN",
	}, nil)

	p, err := f.service.VerifyTopUp(context.Background(), f.userID, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusSuccess, p.Status)
	assert.Equal(t, int64(100_000), f.currentWallet().Balance)
	require.Len(t, f.store.txs, 1)
	assert.Equal(t, domain.TransactionTypeCredit, f.store.txs[0].Type)
	assert.Equal(t, ref, f.store.txs[0].SystemReference)
}

func TestVerifyTopUp_TerminalPaymentSkipsGateway(t *testing.T) {
	f := newFixture(t, 0)

	p, err := domain.NewPayment(f.wallet.ID, "paystack", 100_000, domain.NGN, domain.DirectionIncoming, "card")
	require.NoError(t, err)
	p, err = p.MarkAsFailed("card declined")
	require.NoError(t, err)
	f.store.putPayment(p)

	got, err := f.service.VerifyTopUp(context.Background(), f.userID, p.SystemReference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, got.Status)
	f.gateway.AssertNotCalled(t, "VerifyTransaction", mock.Anything, mock.Anything)
}

func TestInitiateWithdrawal_DebitsAndRecordsLedgerRow(t *testing.T) {
	f := newFixture(t, 50_000)
	f.gateway.On("InitiateTransfer", mock.Anything, mock.Anything).Return(&gateway.TransferResponse{
		Status:       "pending",
		TransferCode: "TRF_1",
	}, nil)

	p, err := f.service.InitiateWithdrawal(context.Background(), f.userID, &InitiateWithdrawalRequest{
		WalletID:  f.wallet.ID,
		Amount:    50_000,
		Recipient: "RCP_1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, p.Status)
	assert.Equal(t, domain.DirectionOutgoing, p.Direction)
	assert.Equal(t, int64(0), f.currentWallet().Balance)
	require.Len(t, f.store.txs, 1)
	assert.Equal(t, domain.TransactionTypeDebit, f.store.txs[0].Type)
	assert.Equal(t, domain.SourceWithdrawal, f.store.txs[0].Source)
}

func TestInitiateWithdrawal_InsufficientBalance(t *testing.T) {
	f := newFixture(t, 10_000)

	_, err := f.service.InitiateWithdrawal(context.Background(), f.userID, &InitiateWithdrawalRequest{
		WalletID:  f.wallet.ID,
		Amount:    10_001,
		Recipient: "RCP_1",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrInsufficientBalance)
	f.gateway.AssertNotCalled(t, "InitiateTransfer", mock.Anything, mock.Anything)
	assert.Empty(t, f.store.payments)
}

func TestCancelPayment(t *testing.T) {
	f := newFixture(t, 0)

	p, err := domain.NewPayment(f.wallet.ID, "paystack", 100_000, domain.NGN, domain.DirectionIncoming, "card")
	require.NoError(t, err)
	p, err = p.MarkAsPending()
	require.NoError(t, err)
	f.store.putPayment(p)

	cancelled, err := f.service.CancelPayment(context.Background(), f.userID, p.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, cancelled.Status)

	// Terminal payments stay cancelled
	_, err = f.service.CancelPayment(context.Background(), f.userID, p.ID, "again")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPaymentState)
}

func TestCancelPayment_WithdrawalsRejected(t *testing.T) {
	f := newFixture(t, 50_000)

	p, err := domain.NewPayment(f.wallet.ID, "paystack", 50_000, domain.NGN, domain.DirectionOutgoing, "transfer")
	require.NoError(t, err)
	p, err = p.MarkAsPending()
	require.NoError(t, err)
	f.store.putPayment(p)

	_, err = f.service.CancelPayment(context.Background(), f.userID, p.ID, "nope")
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidPaymentState)
}

func TestSettleTopUp_CreditsWalletOnce(t *testing.T) {
	f := newFixture(t, 0)

	p, err := domain.NewPayment(f.wallet.ID, "paystack", 100_000, domain.NGN, domain.DirectionIncoming, "card")
	require.NoError(t, err)
	p, err = p.MarkAsPending()
	require.NoError(t, err)
	f.store.putPayment(p)

	settled, already, err := f.service.settleTopUp(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, domain.PaymentStatusSuccess, settled.Status)
	assert.Equal(t, int64(100_000), f.currentWallet().Balance)
}
