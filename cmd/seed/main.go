// Seeding tool for local development: provisions two demo users' wallets
// (a client and a freelancer) and funds the client's wallet so escrow and
// withdrawal flows can be exercised immediately.
//
// Usage (env overrides):
//
//	SEED_CLIENT_ID=<uuid> SEED_FREELANCER_ID=<uuid> SEED_BALANCE=1000000
package main

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gigpay/internal/domain"
	"gigpay/internal/ledger"
	"gigpay/internal/repository/postgres"
	"gigpay/pkg/config"
	pkgerrors "gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

func main() {
	log := logger.New("seed")

	cfg := config.Load()
	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	walletRepo := postgres.NewWalletRepository(db)
	txRepo := postgres.NewTransactionRepository(db)
	ctx := context.Background()

	currency := domain.Currency(cfg.Wallet.DefaultCurrency)
	clientID := getUUID("SEED_CLIENT_ID", uuid.MustParse("11111111-1111-1111-1111-111111111111"))
	freelancerID := getUUID("SEED_FREELANCER_ID", uuid.MustParse("22222222-2222-2222-2222-222222222222"))
	balance := getInt64("SEED_BALANCE", 1_000_000)

	ensureWallet(ctx, log, walletRepo, txRepo, clientID, currency, balance)
	ensureWallet(ctx, log, walletRepo, txRepo, freelancerID, currency, 0)

	log.Info("Seed complete", map[string]interface{}{
		"client_id":     clientID,
		"freelancer_id": freelancerID,
	})
}

func ensureWallet(ctx context.Context, log logger.Logger, wallets ledger.WalletRepository, txs ledger.TransactionRepository, userID uuid.UUID, currency domain.Currency, balance int64) {
	if existing, err := wallets.FindByUserID(ctx, userID); err == nil {
		log.Info("Wallet already exists", map[string]interface{}{
			"user_id":   userID,
			"wallet_id": existing.ID,
		})
		return
	}

	w := domain.NewWallet(userID, currency)
	if err := wallets.Create(ctx, w); err != nil {
		if errors.Is(err, pkgerrors.ErrWalletAlreadyExists) {
			return
		}
		log.Fatal("Failed to create wallet", map[string]interface{}{"error": err.Error()})
	}

	if balance > 0 {
		funded, err := w.Fund(balance, 0)
		if err != nil {
			log.Fatal("Failed to fund wallet", map[string]interface{}{"error": err.Error()})
		}
		if err := wallets.UpdateCAS(ctx, funded); err != nil {
			log.Fatal("Failed to persist funded wallet", map[string]interface{}{"error": err.Error()})
		}
		row, err := domain.NewTransaction(w.ID, nil, domain.TransactionTypeCredit, balance, currency, "GP-SEED-"+w.ID.String(), domain.SourceTopUp)
		if err != nil {
			log.Fatal("Failed to build seed ledger row", map[string]interface{}{"error": err.Error()})
		}
		if err := txs.Create(ctx, row); err != nil {
			log.Fatal("Failed to append seed ledger row", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("Wallet seeded", map[string]interface{}{
		"user_id":   userID,
		"wallet_id": w.ID,
		"balance":   balance,
	})
}

func getUUID(key string, fallback uuid.UUID) uuid.UUID {
	if v := os.Getenv(key); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			return id
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
