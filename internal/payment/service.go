// ==============================================================================
// PAYMENT SERVICE - internal/payment/service.go
// ==============================================================================
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gigpay/internal/domain"
	"gigpay/internal/events"
	"gigpay/internal/gateway"
	"gigpay/internal/ledger"
	"gigpay/internal/notification"
	"gigpay/pkg/config"
	pkgerrors "gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

const providerName = "paystack"

// casRetries bounds how often a unit of work is replayed after losing an
// optimistic-concurrency race on the wallet row.
const casRetries = 3

type Service struct {
	wallets   ledger.WalletRepository
	payments  ledger.PaymentRepository
	uow       ledger.UnitOfWork
	gateway   gateway.Gateway
	publisher events.Publisher
	notifier  notification.Service
	logger    logger.Logger

	callbackURL      string
	maxSingleDeposit int64
}

func NewService(
	wallets ledger.WalletRepository,
	payments ledger.PaymentRepository,
	uow ledger.UnitOfWork,
	gw gateway.Gateway,
	publisher events.Publisher,
	notifier notification.Service,
	log logger.Logger,
	cfg *config.Config,
) *Service {
	s := &Service{
		wallets:   wallets,
		payments:  payments,
		uow:       uow,
		gateway:   gw,
		publisher: publisher,
		notifier:  notifier,
		logger:    log,
	}
	if cfg != nil {
		s.callbackURL = cfg.Gateway.CallbackURL
		s.maxSingleDeposit = cfg.Wallet.MaxSingleDeposit
	}
	return s
}

type InitiateTopUpRequest struct {
	WalletID uuid.UUID `json:"wallet_id" validate:"required"`
	Amount   int64     `json:"amount" validate:"required,gt=0"` // minor units
	Email    string    `json:"email" validate:"required,email"`
	Channel  string    `json:"channel"`
}

type TopUpResponse struct {
	Payment          domain.Payment `json:"payment"`
	AuthorizationURL string         `json:"authorization_url"`
}

// InitiateTopUp starts an incoming charge. Nothing is persisted unless the
// gateway accepts the transaction; the wallet itself is only credited later,
// when the charge is confirmed by webhook or verification.
func (s *Service) InitiateTopUp(ctx context.Context, userID uuid.UUID, req *InitiateTopUpRequest) (*TopUpResponse, error) {
	wallet, err := s.wallets.FindByID(ctx, req.WalletID)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != userID {
		return nil, pkgerrors.ErrUnauthorizedAccess
	}
	if wallet.Status != domain.WalletStatusActive {
		return nil, pkgerrors.ErrWalletNotActive
	}
	if s.maxSingleDeposit > 0 && req.Amount > s.maxSingleDeposit {
		return nil, pkgerrors.ErrDepositCapExceeded
	}

	channel := req.Channel
	if channel == "" {
		channel = "card"
	}

	p, err := domain.NewPayment(wallet.ID, providerName, req.Amount, wallet.Currency, domain.DirectionIncoming, channel)
	if err != nil {
		return nil, err
	}

	init, err := s.gateway.InitializeTransaction(ctx, &gateway.InitializeRequest{
		Amount:      p.Amount,
		Email:       req.Email,
		Reference:   p.SystemReference,
		CallbackURL: s.callbackURL,
		Metadata: map[string]interface{}{
			"wallet_id":  wallet.ID.String(),
			"payment_id": p.ID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	p = p.AttachProviderReference(init.Reference)
	p, err = p.MarkAsPending()
	if err != nil {
		return nil, err
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("Top-up initiated", map[string]interface{}{
		"payment_id": p.ID,
		"wallet_id":  wallet.ID,
		"amount":     p.Amount,
		"reference":  p.SystemReference,
	})

	return &TopUpResponse{Payment: p, AuthorizationURL: init.AuthorizationURL}, nil
}

// VerifyTopUp pulls the provider's view of a pending charge and settles it.
// Safe to call any number of times; once the payment is terminal it is
// returned unchanged.
func (s *Service) VerifyTopUp(ctx context.Context, userID uuid.UUID, systemReference string) (domain.Payment, error) {
	p, err := s.payments.FindBySystemReference(ctx, systemReference)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.authorize(ctx, userID, p); err != nil {
		return domain.Payment{}, err
	}
	if p.Status.IsTerminal() {
		return p, nil
	}

	v, err := s.gateway.VerifyTransaction(ctx, p.SystemReference)
	if err != nil {
		return domain.Payment{}, err
	}

	switch v.Status {
	case "success":
		if v.Amount != p.Amount {
			return s.failPayment(ctx, p, fmt.Sprintf("amount mismatch: charged %d, expected %d", v.Amount, p.Amount))
		}
		settled, _, err := s.settleTopUp(ctx, p.ID)
		return settled, err
	case "failed", "abandoned":
		return s.failPayment(ctx, p, v.GatewayResponse)
	default:
		// Still in flight at the provider.
		return p, nil
	}
}

type InitiateWithdrawalRequest struct {
	WalletID  uuid.UUID `json:"wallet_id" validate:"required"`
	Amount    int64     `json:"amount" validate:"required,gt=0"` // minor units
	Recipient string    `json:"recipient" validate:"required"`   // provider recipient code
	Reason    string    `json:"reason"`
}

// InitiateWithdrawal debits the wallet and submits a transfer to the
// provider. The debit, the payment record and the ledger row commit in one
// unit of work after the provider has accepted the transfer; if the gateway
// call fails, no local state changes at all. A later transfer.failed or
// transfer.reversed webhook returns the funds.
func (s *Service) InitiateWithdrawal(ctx context.Context, userID uuid.UUID, req *InitiateWithdrawalRequest) (domain.Payment, error) {
	wallet, err := s.wallets.FindByID(ctx, req.WalletID)
	if err != nil {
		return domain.Payment{}, err
	}
	if wallet.UserID != userID {
		return domain.Payment{}, pkgerrors.ErrUnauthorizedAccess
	}
	if wallet.Status != domain.WalletStatusActive {
		return domain.Payment{}, pkgerrors.ErrWalletNotActive
	}
	if req.Amount > wallet.Available() {
		return domain.Payment{}, pkgerrors.ErrInsufficientBalance
	}

	p, err := domain.NewPayment(wallet.ID, providerName, req.Amount, wallet.Currency, domain.DirectionOutgoing, "transfer")
	if err != nil {
		return domain.Payment{}, err
	}

	tr, err := s.gateway.InitiateTransfer(ctx, &gateway.TransferRequest{
		Amount:    p.Amount,
		Recipient: req.Recipient,
		Reference: p.SystemReference,
		Reason:    req.Reason,
	})
	if err != nil {
		return domain.Payment{}, err
	}

	p = p.AttachProviderReference(tr.TransferCode)
	p, err = p.MarkAsPending()
	if err != nil {
		return domain.Payment{}, err
	}

	var evts []domain.Event
	err = s.withConflictRetry(ctx, func(ops ledger.Ops) error {
		evts = evts[:0]

		w, err := ops.Wallets().FindByID(ctx, p.WalletID)
		if err != nil {
			return err
		}
		debited, err := w.Debit(p.Amount)
		if err != nil {
			return err
		}
		if err := ops.Wallets().UpdateCAS(ctx, debited); err != nil {
			return err
		}
		if err := ops.Payments().Create(ctx, p); err != nil {
			return err
		}

		row, err := domain.NewTransaction(w.ID, &p.ID, domain.TransactionTypeDebit, p.Amount, p.Currency, p.SystemReference, domain.SourceWithdrawal)
		if err != nil {
			return err
		}
		if p.ProviderReference != nil {
			row = row.WithProviderReference(*p.ProviderReference)
		}
		if err := ops.Transactions().Create(ctx, row); err != nil {
			return err
		}

		evts = append(evts, domain.NewEvent(domain.EventWalletDebited, map[string]interface{}{
			"wallet_id": w.ID.String(),
			"amount":    p.Amount,
			"currency":  p.Currency,
			"reference": p.SystemReference,
		}))
		return nil
	})
	if err != nil {
		// The provider already holds this transfer; an unpersisted debit
		// here must be caught by reconciliation against the provider.
		s.logger.Error("Withdrawal accepted by provider but not committed", map[string]interface{}{
			"payment_id": p.ID,
			"reference":  p.SystemReference,
			"error":      err.Error(),
		})
		return domain.Payment{}, err
	}

	s.publishAll(ctx, evts)
	s.notify(ctx, wallet.UserID, domain.EventWalletDebited, map[string]interface{}{
		"amount":    domain.FormatMinor(p.Amount, p.Currency),
		"currency":  p.Currency,
		"reference": p.SystemReference,
	})

	s.logger.Info("Withdrawal initiated", map[string]interface{}{
		"payment_id": p.ID,
		"wallet_id":  wallet.ID,
		"amount":     p.Amount,
		"reference":  p.SystemReference,
	})

	return p, nil
}

// CancelPayment cancels a charge that has not reached a terminal state.
// Withdrawals cannot be cancelled here: once submitted the transfer belongs
// to the provider, and only its webhooks decide the outcome.
func (s *Service) CancelPayment(ctx context.Context, userID, paymentID uuid.UUID, reason string) (domain.Payment, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.authorize(ctx, userID, p); err != nil {
		return domain.Payment{}, err
	}
	if p.Direction == domain.DirectionOutgoing {
		return domain.Payment{}, pkgerrors.Wrap(pkgerrors.ErrInvalidPaymentState, "withdrawals cannot be cancelled once submitted")
	}

	next, err := p.Cancel(reason)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.payments.UpdateFrom(ctx, next, p.Status); err != nil {
		return domain.Payment{}, err
	}

	s.logger.Info("Payment cancelled", map[string]interface{}{
		"payment_id": p.ID,
		"reason":     reason,
	})
	return next, nil
}

func (s *Service) GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (domain.Payment, error) {
	p, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.authorize(ctx, userID, p); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

func (s *Service) ListWalletPayments(ctx context.Context, userID, walletID uuid.UUID, limit, offset int) ([]domain.Payment, error) {
	wallet, err := s.wallets.FindByID(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if wallet.UserID != userID {
		return nil, pkgerrors.ErrUnauthorizedAccess
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.payments.FindByWalletID(ctx, walletID, limit, offset)
}

func (s *Service) authorize(ctx context.Context, userID uuid.UUID, p domain.Payment) error {
	wallet, err := s.wallets.FindByID(ctx, p.WalletID)
	if err != nil {
		return err
	}
	if wallet.UserID != userID {
		return pkgerrors.ErrUnauthorizedAccess
	}
	return nil
}

// settleTopUp credits the wallet, marks the payment successful and appends
// the credit ledger row, all in one unit of work. The payment is re-read
// inside the transaction: if a concurrent settlement already made it
// terminal, nothing is written and already reports true.
func (s *Service) settleTopUp(ctx context.Context, paymentID uuid.UUID) (settled domain.Payment, already bool, err error) {
	var ownerID uuid.UUID
	var evts []domain.Event

	err = s.withConflictRetry(ctx, func(ops ledger.Ops) error {
		evts = evts[:0]
		already = false

		current, err := ops.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			settled = current
			already = true
			return nil
		}

		w, err := ops.Wallets().FindByID(ctx, current.WalletID)
		if err != nil {
			return err
		}
		ownerID = w.UserID

		// Cap 0: the cap was enforced at initiation, and the provider has
		// already captured this money. Re-checking here would strand the
		// funds if the cap was lowered in between.
		funded, err := w.Fund(current.Amount, 0)
		if err != nil {
			return err
		}
		if err := ops.Wallets().UpdateCAS(ctx, funded); err != nil {
			return err
		}

		next, err := current.MarkAsSuccess()
		if err != nil {
			return err
		}
		if err := ops.Payments().UpdateFrom(ctx, next, current.Status); err != nil {
			return err
		}

		row, err := domain.NewTransaction(w.ID, &next.ID, domain.TransactionTypeCredit, next.Amount, next.Currency, next.SystemReference, domain.SourceTopUp)
		if err != nil {
			return err
		}
		if next.ProviderReference != nil {
			row = row.WithProviderReference(*next.ProviderReference)
		}
		if err := ops.Transactions().Create(ctx, row); err != nil {
			return err
		}

		settled = next
		evts = append(evts,
			domain.NewEvent(domain.EventWalletCredited, map[string]interface{}{
				"wallet_id": w.ID.String(),
				"amount":    next.Amount,
				"currency":  next.Currency,
				"reference": next.SystemReference,
			}),
			domain.NewEvent(domain.EventPaymentSucceeded, map[string]interface{}{
				"payment_id": next.ID.String(),
				"reference":  next.SystemReference,
			}),
		)
		return nil
	})
	if err != nil || already {
		return settled, already, err
	}

	s.publishAll(ctx, evts)
	s.notify(ctx, ownerID, domain.EventWalletCredited, map[string]interface{}{
		"amount":   domain.FormatMinor(settled.Amount, settled.Currency),
		"currency": settled.Currency,
	})

	s.logger.Info("Top-up settled", map[string]interface{}{
		"payment_id": settled.ID,
		"amount":     settled.Amount,
		"reference":  settled.SystemReference,
	})
	return settled, false, nil
}

// failPayment moves a non-terminal charge to failed. No money moved yet for
// incoming charges, so only the payment row changes.
func (s *Service) failPayment(ctx context.Context, p domain.Payment, reason string) (domain.Payment, error) {
	next, err := p.MarkAsFailed(reason)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := s.payments.UpdateFrom(ctx, next, p.Status); err != nil {
		return domain.Payment{}, err
	}
	s.logger.Warn("Payment failed", map[string]interface{}{
		"payment_id": p.ID,
		"reference":  p.SystemReference,
		"reason":     reason,
	})
	return next, nil
}

// withConflictRetry replays the unit of work after an optimistic-concurrency
// loss. The closure re-reads its aggregates on each attempt, so a replay
// operates on fresh state.
func (s *Service) withConflictRetry(ctx context.Context, fn func(ops ledger.Ops) error) error {
	var err error
	for attempt := 0; attempt < casRetries; attempt++ {
		err = s.uow.Execute(ctx, fn)
		if !errors.Is(err, pkgerrors.ErrConcurrencyConflict) {
			return err
		}
		s.logger.Warn("Optimistic concurrency conflict, retrying", map[string]interface{}{
			"attempt": attempt + 1,
		})
	}
	return err
}

func (s *Service) publishAll(ctx context.Context, evts []domain.Event) {
	for _, evt := range evts {
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.Error("Failed to publish event", map[string]interface{}{
				"event_id": evt.ID,
				"type":     evt.Type,
				"error":    err.Error(),
			})
		}
	}
}

// notify delivers off the request path. The request context may already be
// cancelled by the time mail goes out, so delivery is detached from it.
func (s *Service) notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	go func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, userID, eventType, data); err != nil {
			s.logger.Warn("Notification delivery failed", map[string]interface{}{
				"user_id": userID,
				"type":    eventType,
			})
		}
	}(context.WithoutCancel(ctx))
}
