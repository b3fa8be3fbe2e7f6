// ==============================================================================
// WALLET SERVICE - internal/wallet/service.go
// ==============================================================================
package wallet

import (
	"context"

	"github.com/google/uuid"

	"gigpay/internal/domain"
	"gigpay/internal/ledger"
	"gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

type Service struct {
	wallets      ledger.WalletRepository
	transactions ledger.TransactionRepository
	logger       logger.Logger
}

func NewService(wallets ledger.WalletRepository, transactions ledger.TransactionRepository, log logger.Logger) *Service {
	return &Service{
		wallets:      wallets,
		transactions: transactions,
		logger:       log,
	}
}

type CreateWalletRequest struct {
	UserID   uuid.UUID       `json:"user_id" validate:"required"`
	Currency domain.Currency `json:"currency" validate:"required,oneof=NGN GHS KES"`
}

// CreateWallet provisions the single wallet a user holds. A second attempt
// for the same user returns errors.ErrWalletAlreadyExists.
func (s *Service) CreateWallet(ctx context.Context, req *CreateWalletRequest) (domain.Wallet, error) {
	wallet := domain.NewWallet(req.UserID, req.Currency)

	if err := s.wallets.Create(ctx, wallet); err != nil {
		return domain.Wallet{}, err
	}

	s.logger.Info("Wallet created", map[string]interface{}{
		"wallet_id": wallet.ID,
		"user_id":   req.UserID,
		"currency":  req.Currency,
	})

	return wallet, nil
}

func (s *Service) GetWallet(ctx context.Context, id uuid.UUID) (domain.Wallet, error) {
	return s.wallets.FindByID(ctx, id)
}

func (s *Service) GetUserWallet(ctx context.Context, userID uuid.UUID) (domain.Wallet, error) {
	return s.wallets.FindByUserID(ctx, userID)
}

type BalanceResponse struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	Currency  domain.Currency `json:"currency"`
	Balance   int64           `json:"balance"`
	Reserved  int64           `json:"reserved"`
	Available int64           `json:"available"`
}

func (s *Service) GetBalance(ctx context.Context, walletID uuid.UUID) (*BalanceResponse, error) {
	wallet, err := s.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}

	return &BalanceResponse{
		WalletID:  wallet.ID,
		Currency:  wallet.Currency,
		Balance:   wallet.Balance,
		Reserved:  wallet.Reserved,
		Available: wallet.Available(),
	}, nil
}

// GetStatement lists the wallet's ledger rows, newest first. Every balance
// change a wallet has ever seen is reconstructible from this list.
func (s *Service) GetStatement(ctx context.Context, userID, walletID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	wallet, err := s.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != userID {
		return nil, errors.ErrUnauthorizedAccess
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	return s.transactions.FindByWalletID(ctx, walletID, limit, offset)
}
