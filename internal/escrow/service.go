// ==============================================================================
// ESCROW SERVICE - internal/escrow/service.go
// ==============================================================================
package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"gigpay/internal/domain"
	"gigpay/internal/events"
	"gigpay/internal/ledger"
	"gigpay/internal/notification"
	pkgerrors "gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

const casRetries = 3

type Service struct {
	wallets   ledger.WalletRepository
	escrows   ledger.EscrowRepository
	uow       ledger.UnitOfWork
	publisher events.Publisher
	notifier  notification.Service
	logger    logger.Logger
}

func NewService(
	wallets ledger.WalletRepository,
	escrows ledger.EscrowRepository,
	uow ledger.UnitOfWork,
	publisher events.Publisher,
	notifier notification.Service,
	log logger.Logger,
) *Service {
	return &Service{
		wallets:   wallets,
		escrows:   escrows,
		uow:       uow,
		publisher: publisher,
		notifier:  notifier,
		logger:    log,
	}
}

type CreateEscrowRequest struct {
	ContractID   uuid.UUID       `json:"contract_id" validate:"required"`
	FreelancerID uuid.UUID       `json:"freelancer_id" validate:"required"`
	Amount       int64           `json:"amount" validate:"required,gt=0"` // minor units
	Currency     domain.Currency `json:"currency" validate:"required"`
}

// CreateEscrow opens the escrow account for a contract. One account per
// contract; a second attempt returns errors.ErrDuplicateReference.
func (s *Service) CreateEscrow(ctx context.Context, creatorID uuid.UUID, req *CreateEscrowRequest) (domain.EscrowAccount, error) {
	esc, err := domain.NewEscrowAccount(req.ContractID, creatorID, req.FreelancerID, req.Amount, req.Currency)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if err := s.escrows.Create(ctx, esc); err != nil {
		return domain.EscrowAccount{}, err
	}

	s.logger.Info("Escrow opened", map[string]interface{}{
		"escrow_id":   esc.ID,
		"contract_id": esc.ContractID,
		"amount":      esc.ExpectedAmount,
	})
	return esc, nil
}

// FundEscrow moves the full contract amount from the creator's wallet into
// the escrow. The wallet debit, the escrow credit and the ledger row commit
// together or not at all. Only the contract's creator may fund.
func (s *Service) FundEscrow(ctx context.Context, callerID, escrowID, walletID uuid.UUID) (domain.EscrowAccount, error) {
	var (
		funded  domain.EscrowAccount
		ownerID uuid.UUID
		evts    []domain.Event
	)
	err := s.withConflictRetry(ctx, func(ops ledger.Ops) error {
		evts = evts[:0]

		esc, err := ops.Escrows().FindByID(ctx, escrowID)
		if err != nil {
			return err
		}
		if esc.CreatorID != callerID {
			return pkgerrors.ErrUnauthorizedAccess
		}

		w, err := ops.Wallets().FindByID(ctx, walletID)
		if err != nil {
			return err
		}
		if w.UserID != callerID {
			return pkgerrors.ErrUnauthorizedAccess
		}
		// Amounts are raw minor units, so cross-currency movement would
		// silently transact at a 1:1 rate.
		if w.Currency != esc.Currency {
			return pkgerrors.ErrCurrencyMismatch
		}
		ownerID = w.UserID

		if esc.Balance >= esc.ExpectedAmount {
			return pkgerrors.Wrap(pkgerrors.ErrInvalidEscrowState, "escrow is already funded")
		}

		amount := esc.ExpectedAmount - esc.Balance
		debited, err := w.Debit(amount)
		if err != nil {
			return err
		}
		next, err := esc.Fund(amount)
		if err != nil {
			return err
		}

		if err := ops.Wallets().UpdateCAS(ctx, debited); err != nil {
			return err
		}
		if err := ops.Escrows().UpdateFrom(ctx, next, esc.Status); err != nil {
			return err
		}

		ref := escrowReference(esc.ContractID, "funding")
		row, err := domain.NewTransaction(w.ID, nil, domain.TransactionTypeDebit, amount, w.Currency, ref, domain.SourceEscrowFunding)
		if err != nil {
			return err
		}
		if err := ops.Transactions().Create(ctx, row); err != nil {
			return err
		}

		funded = next
		evts = append(evts,
			domain.NewEvent(domain.EventWalletDebited, map[string]interface{}{
				"wallet_id": w.ID.String(),
				"amount":    amount,
				"currency":  w.Currency,
				"reference": ref,
			}),
			domain.NewEvent(domain.EventEscrowFunded, map[string]interface{}{
				"escrow_id":   next.ID.String(),
				"contract_id": next.ContractID.String(),
				"amount":      amount,
			}),
		)
		return nil
	})
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	s.publishAll(ctx, evts)
	s.notify(ctx, ownerID, domain.EventEscrowFunded, map[string]interface{}{
		"contract_id": funded.ContractID.String(),
	})

	s.logger.Info("Escrow funded", map[string]interface{}{
		"escrow_id":   funded.ID,
		"contract_id": funded.ContractID,
		"balance":     funded.Balance,
	})
	return funded, nil
}

// ReleaseEscrow pays the held balance out to the freelancer's wallet. Legal
// exactly once per escrow; a second call fails on the escrow's state. Only
// the contract's creator may release.
func (s *Service) ReleaseEscrow(ctx context.Context, callerID, escrowID uuid.UUID) (domain.EscrowAccount, error) {
	var (
		released     domain.EscrowAccount
		freelancerID uuid.UUID
		payout       int64
		evts         []domain.Event
	)
	err := s.withConflictRetry(ctx, func(ops ledger.Ops) error {
		evts = evts[:0]

		esc, err := ops.Escrows().FindByID(ctx, escrowID)
		if err != nil {
			return err
		}
		if esc.CreatorID != callerID {
			return pkgerrors.ErrUnauthorizedAccess
		}
		if esc.Balance != esc.ExpectedAmount {
			return pkgerrors.Wrap(pkgerrors.ErrInvalidEscrowState, "escrow is not fully funded")
		}

		next, amount, err := esc.Release()
		if err != nil {
			return err
		}

		w, err := ops.Wallets().FindByUserID(ctx, esc.FreelancerID)
		if err != nil {
			return err
		}
		if w.Currency != esc.Currency {
			return pkgerrors.ErrCurrencyMismatch
		}
		freelancerID = esc.FreelancerID

		credited, err := w.Fund(amount, 0)
		if err != nil {
			return err
		}

		if err := ops.Wallets().UpdateCAS(ctx, credited); err != nil {
			return err
		}
		if err := ops.Escrows().UpdateFrom(ctx, next, esc.Status); err != nil {
			return err
		}

		ref := escrowReference(esc.ContractID, "release")
		row, err := domain.NewTransaction(w.ID, nil, domain.TransactionTypeCredit, amount, w.Currency, ref, domain.SourceEscrowRelease)
		if err != nil {
			return err
		}
		if err := ops.Transactions().Create(ctx, row); err != nil {
			return err
		}

		released = next
		payout = amount
		evts = append(evts,
			domain.NewEvent(domain.EventWalletCredited, map[string]interface{}{
				"wallet_id": w.ID.String(),
				"amount":    amount,
				"currency":  w.Currency,
				"reference": ref,
			}),
			domain.NewEvent(domain.EventEscrowReleased, map[string]interface{}{
				"escrow_id":   next.ID.String(),
				"contract_id": next.ContractID.String(),
				"amount":      amount,
			}),
		)
		return nil
	})
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	s.publishAll(ctx, evts)
	s.notify(ctx, freelancerID, domain.EventEscrowReleased, map[string]interface{}{
		"contract_id": released.ContractID.String(),
		"amount":      domain.FormatMinor(payout, released.Currency),
		"currency":    released.Currency,
	})

	s.logger.Info("Escrow released", map[string]interface{}{
		"escrow_id":   released.ID,
		"contract_id": released.ContractID,
		"payout":      payout,
	})
	return released, nil
}

// DisputeEscrow freezes a funded escrow pending resolution. Either party to
// the contract may raise a dispute.
func (s *Service) DisputeEscrow(ctx context.Context, callerID, escrowID uuid.UUID, reason string) (domain.EscrowAccount, error) {
	esc, err := s.escrows.FindByID(ctx, escrowID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if esc.CreatorID != callerID && esc.FreelancerID != callerID {
		return domain.EscrowAccount{}, pkgerrors.ErrUnauthorizedAccess
	}

	next, err := esc.MarkAsDisputed()
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if err := s.escrows.UpdateFrom(ctx, next, esc.Status); err != nil {
		return domain.EscrowAccount{}, err
	}

	s.publishAll(ctx, []domain.Event{domain.NewEvent(domain.EventEscrowDisputed, map[string]interface{}{
		"escrow_id":   next.ID.String(),
		"contract_id": next.ContractID.String(),
		"reason":      reason,
	})})
	s.notify(ctx, esc.CreatorID, domain.EventEscrowDisputed, map[string]interface{}{
		"contract_id": next.ContractID.String(),
	})
	s.notify(ctx, esc.FreelancerID, domain.EventEscrowDisputed, map[string]interface{}{
		"contract_id": next.ContractID.String(),
	})

	s.logger.Warn("Escrow disputed", map[string]interface{}{
		"escrow_id":   next.ID,
		"contract_id": next.ContractID,
		"reason":      reason,
	})
	return next, nil
}

func (s *Service) GetEscrow(ctx context.Context, callerID, escrowID uuid.UUID) (domain.EscrowAccount, error) {
	esc, err := s.escrows.FindByID(ctx, escrowID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if esc.CreatorID != callerID && esc.FreelancerID != callerID {
		return domain.EscrowAccount{}, pkgerrors.ErrUnauthorizedAccess
	}
	return esc, nil
}

func (s *Service) GetEscrowByContract(ctx context.Context, callerID, contractID uuid.UUID) (domain.EscrowAccount, error) {
	esc, err := s.escrows.FindByContractID(ctx, contractID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if esc.CreatorID != callerID && esc.FreelancerID != callerID {
		return domain.EscrowAccount{}, pkgerrors.ErrUnauthorizedAccess
	}
	return esc, nil
}

// escrowReference derives the ledger reference for a contract money
// movement. Deterministic per contract and stage, so replays collide on the
// ledger's uniqueness instead of double-posting.
func escrowReference(contractID uuid.UUID, stage string) string {
	return "GP-ESC-" + contractID.String() + ":" + stage
}

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

// notify delivers off the request path, detached from request cancellation.
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
