// ==============================================================================
// GIGPAY LEDGER API - cmd/api/main.go
// ==============================================================================
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gigpay/internal/escrow"
	"gigpay/internal/events"
	"gigpay/internal/gateway"
	"gigpay/internal/handler"
	"gigpay/internal/middleware"
	"gigpay/internal/notification"
	"gigpay/internal/payment"
	"gigpay/internal/repository/postgres"
	"gigpay/internal/wallet"
	"gigpay/pkg/cache"
	"gigpay/pkg/config"
	"gigpay/pkg/logger"
	"gigpay/pkg/mailer"
	"gigpay/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.New("ledger-api")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Ledger API", map[string]interface{}{
		"port": cfg.Server.Port,
	})

	// Database connection
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	log.Info("Database connected", nil)

	// Redis connection
	redisClient, err := cache.NewClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
	}
	defer redisClient.Close()

	log.Info("Redis connected", nil)

	// Repositories and the transactional boundary
	walletRepo := postgres.NewWalletRepository(db)
	paymentRepo := postgres.NewPaymentRepository(db)
	escrowRepo := postgres.NewEscrowRepository(db)
	txRepo := postgres.NewTransactionRepository(db)
	uow := postgres.NewUnitOfWork(db)

	// Outbound ports
	paystack := gateway.NewPaystackClient(cfg.Gateway.BaseURL, cfg.Gateway.SecretKey, cfg.Gateway.Timeout, log)
	publisher := events.NewRedisPublisher(redisClient, log)
	smtp := mailer.New(mailer.Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
		UseTLS:   cfg.Email.SMTPUseTLS,
	})
	var notifier notification.Service = notification.NopService{}
	if cfg.Email.SMTPUsername != "" {
		notifier = notification.NewEmailService(log, smtp, notification.EnvDirectory{
			Address: os.Getenv("NOTIFY_FALLBACK_EMAIL"),
		})
	}

	// Services
	walletService := wallet.NewService(walletRepo, txRepo, log)
	paymentService := payment.NewService(walletRepo, paymentRepo, uow, paystack, publisher, notifier, log, cfg)
	escrowService := escrow.NewService(walletRepo, escrowRepo, uow, publisher, notifier, log)

	// Handlers
	val := validator.New()
	balanceCache := cache.NewRedisCache(redisClient)
	walletHandler := handler.NewWalletHandler(walletService, balanceCache, val, log)
	paymentHandler := handler.NewPaymentHandler(paymentService, val, log)
	escrowHandler := handler.NewEscrowHandler(escrowService, val, log)
	webhookHandler := handler.NewWebhookHandler(paymentService, log)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	idemMW := middleware.NewIdempotencyMiddleware(redisClient, 24*time.Hour)

	// Router
	r := mux.NewRouter()
	r.Use(middleware.CORS)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.NewRateLimiter(redisClient, 150, time.Minute).Limit)

	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ready", readyCheck(db)).Methods("GET")

	// Provider callbacks carry their own HMAC auth, no bearer token.
	r.HandleFunc("/webhooks/paystack", webhookHandler.HandleProviderEvent).Methods("POST")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMW.Authenticate)
	api.Use(middleware.NewRateLimiter(redisClient, 60, time.Minute).Limit)

	wallets := api.PathPrefix("/wallets").Subrouter()
	wallets.HandleFunc("", walletHandler.CreateWallet).Methods("POST")
	wallets.HandleFunc("/me", walletHandler.GetMyWallet).Methods("GET")
	wallets.HandleFunc("/{id}", walletHandler.GetWallet).Methods("GET")
	wallets.HandleFunc("/{id}/balance", walletHandler.GetBalance).Methods("GET")
	wallets.HandleFunc("/{id}/transactions", walletHandler.GetStatement).Methods("GET")
	wallets.HandleFunc("/{id}/payments", paymentHandler.ListWalletPayments).Methods("GET")

	payments := api.PathPrefix("/payments").Subrouter()
	payments.Use(idemMW.Require)
	payments.HandleFunc("/topup", paymentHandler.InitiateTopUp).Methods("POST")
	payments.HandleFunc("/withdraw", paymentHandler.InitiateWithdrawal).Methods("POST")
	payments.HandleFunc("/verify/{reference}", paymentHandler.VerifyTopUp).Methods("GET")
	payments.HandleFunc("/{id}", paymentHandler.GetPayment).Methods("GET")
	payments.HandleFunc("/{id}/cancel", paymentHandler.CancelPayment).Methods("POST")

	escrows := api.PathPrefix("/escrows").Subrouter()
	escrows.Use(idemMW.Require)
	escrows.HandleFunc("", escrowHandler.CreateEscrow).Methods("POST")
	escrows.HandleFunc("/contract/{contract_id}", escrowHandler.GetEscrowByContract).Methods("GET")
	escrows.HandleFunc("/{id}", escrowHandler.GetEscrow).Methods("GET")
	escrows.HandleFunc("/{id}/fund", escrowHandler.FundEscrow).Methods("POST")
	escrows.HandleFunc("/{id}/release", escrowHandler.ReleaseEscrow).Methods("POST")
	escrows.HandleFunc("/{id}/dispute", escrowHandler.DisputeEscrow).Methods("POST")

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Ledger API started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{"error": err.Error()})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down ledger API...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Ledger API forced to shutdown", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Ledger API stopped gracefully", nil)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	_ = r
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"ledger","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func readyCheck(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r
		if err := db.Ping(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready","service":"ledger"}`))
	}
}
