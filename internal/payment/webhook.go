package payment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"gigpay/internal/domain"
	"gigpay/internal/ledger"
	pkgerrors "gigpay/pkg/errors"
)

// Webhook processing outcomes. Ignored and already-processed deliveries are
// acknowledged to the provider so it stops retrying.
const (
	WebhookProcessed        = "processed"
	WebhookAlreadyProcessed = "already_processed"
	WebhookIgnored          = "ignored"
)

type WebhookResult struct {
	Event   string `json:"event"`
	Status  string `json:"status"`
	Payment string `json:"payment_id,omitempty"`
}

// webhookEnvelope is the provider's outer event shape.
type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type webhookData struct {
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Status          string `json:"status"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason"`
	TransferCode    string `json:"transfer_code"`
	GatewayResponse string `json:"gateway_response"`
}

// ProcessWebhook handles a raw provider delivery. The signature is verified
// against the exact bytes received, before any parsing. Deliveries are
// at-least-once and unordered, so every handler below must be idempotent:
// replaying the same event never moves money twice.
func (s *Service) ProcessWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		s.logger.Warn("Webhook rejected: bad signature", nil)
		return nil, pkgerrors.ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse webhook payload")
	}
	var data webhookData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to parse webhook data")
		}
	}

	s.logger.Info("Webhook received", map[string]interface{}{
		"event":     env.Event,
		"reference": data.Reference,
	})

	switch env.Event {
	case "charge.success":
		return s.handleChargeSuccess(ctx, data)
	case "charge.failed":
		// The charge never moved wallet money; the user simply retries.
		return &WebhookResult{Event: env.Event, Status: WebhookIgnored}, nil
	case "transfer.success":
		return s.handleTransferSuccess(ctx, data)
	case "transfer.failed":
		return s.handleTransferFailed(ctx, data)
	case "transfer.reversed":
		return s.handleTransferReversed(ctx, data)
	default:
		s.logger.Debug("Webhook event not handled", map[string]interface{}{"event": env.Event})
		return &WebhookResult{Event: env.Event, Status: WebhookIgnored}, nil
	}
}

func (s *Service) handleChargeSuccess(ctx context.Context, data webhookData) (*WebhookResult, error) {
	p, err := s.payments.FindBySystemReference(ctx, data.Reference)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return &WebhookResult{Event: "charge.success", Status: WebhookAlreadyProcessed, Payment: p.ID.String()}, nil
	}
	if data.Amount != 0 && data.Amount != p.Amount {
		failed, err := s.failPayment(ctx, p, "webhook amount does not match initiated amount")
		if err != nil {
			return nil, err
		}
		return &WebhookResult{Event: "charge.success", Status: WebhookProcessed, Payment: failed.ID.String()}, nil
	}

	settled, already, err := s.settleTopUp(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	status := WebhookProcessed
	if already {
		status = WebhookAlreadyProcessed
	}
	return &WebhookResult{Event: "charge.success", Status: status, Payment: settled.ID.String()}, nil
}

// handleTransferSuccess finalizes a withdrawal. The wallet was debited when
// the transfer was submitted, so only the payment record moves.
func (s *Service) handleTransferSuccess(ctx context.Context, data webhookData) (*WebhookResult, error) {
	p, err := s.payments.FindBySystemReference(ctx, data.Reference)
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return &WebhookResult{Event: "transfer.success", Status: WebhookAlreadyProcessed, Payment: p.ID.String()}, nil
	}

	next, err := p.MarkAsSuccess()
	if err != nil {
		return nil, err
	}
	if err := s.payments.UpdateFrom(ctx, next, p.Status); err != nil {
		if errors.Is(err, pkgerrors.ErrConcurrencyConflict) {
			// Lost the race to another delivery of the same event.
			return &WebhookResult{Event: "transfer.success", Status: WebhookAlreadyProcessed, Payment: p.ID.String()}, nil
		}
		return nil, err
	}

	s.publishAll(ctx, []domain.Event{domain.NewEvent(domain.EventPaymentSucceeded, map[string]interface{}{
		"payment_id": next.ID.String(),
		"reference":  next.SystemReference,
	})})
	s.notifyOwner(ctx, next, domain.EventPaymentSucceeded, map[string]interface{}{
		"reference": next.SystemReference,
	})

	s.logger.Info("Withdrawal settled", map[string]interface{}{
		"payment_id": next.ID,
		"reference":  next.SystemReference,
	})
	return &WebhookResult{Event: "transfer.success", Status: WebhookProcessed, Payment: next.ID.String()}, nil
}

func (s *Service) handleTransferFailed(ctx context.Context, data webhookData) (*WebhookResult, error) {
	reason := data.Reason
	if reason == "" {
		reason = "transfer failed at provider"
	}
	return s.refundWithdrawal(ctx, "transfer.failed", data.Reference, reason, false)
}

func (s *Service) handleTransferReversed(ctx context.Context, data webhookData) (*WebhookResult, error) {
	reason := data.Reason
	if reason == "" {
		reason = "transfer reversed by provider"
	}
	return s.refundWithdrawal(ctx, "transfer.reversed", data.Reference, reason, true)
}

// refundWithdrawal returns a debited withdrawal amount to the wallet. The
// refund ledger row gets its own derived reference, distinct from the
// original debit row, so appending it is idempotent on its own.
func (s *Service) refundWithdrawal(ctx context.Context, event, reference, reason string, reversed bool) (*WebhookResult, error) {
	p, err := s.payments.FindBySystemReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	var (
		final   domain.Payment
		already bool
		ownerID uuid.UUID
		evts    []domain.Event
	)
	err = s.withConflictRetry(ctx, func(ops ledger.Ops) error {
		evts = evts[:0]
		already = false

		current, err := ops.Payments().FindByID(ctx, p.ID)
		if err != nil {
			return err
		}

		var next domain.Payment
		var refundSuffix, eventType string
		switch {
		case reversed && current.Status == domain.PaymentStatusSuccess:
			next, err = current.MarkAsReversed(reason)
			refundSuffix = ":reversal"
			eventType = domain.EventPaymentReversed
		case current.Status == domain.PaymentStatusPending:
			next, err = current.MarkAsFailed(reason)
			refundSuffix = ":refund"
			eventType = domain.EventPaymentFailed
		default:
			final = current
			already = true
			return nil
		}
		if err != nil {
			return err
		}

		w, err := ops.Wallets().FindByID(ctx, current.WalletID)
		if err != nil {
			return err
		}
		ownerID = w.UserID

		// Refunds bypass the deposit cap: the money was the user's already.
		refunded, err := w.Fund(current.Amount, 0)
		if err != nil {
			return err
		}
		if err := ops.Wallets().UpdateCAS(ctx, refunded); err != nil {
			return err
		}
		if err := ops.Payments().UpdateFrom(ctx, next, current.Status); err != nil {
			return err
		}

		row, err := domain.NewTransaction(w.ID, &next.ID, domain.TransactionTypeCredit, next.Amount, next.Currency, next.SystemReference+refundSuffix, domain.SourceWithdrawalRefund)
		if err != nil {
			return err
		}
		if next.ProviderReference != nil {
			row = row.WithProviderReference(*next.ProviderReference)
		}
		if err := ops.Transactions().Create(ctx, row); err != nil {
			return err
		}

		final = next
		evts = append(evts,
			domain.NewEvent(domain.EventWalletCredited, map[string]interface{}{
				"wallet_id": w.ID.String(),
				"amount":    next.Amount,
				"currency":  next.Currency,
				"reference": next.SystemReference + refundSuffix,
			}),
			domain.NewEvent(eventType, map[string]interface{}{
				"payment_id": next.ID.String(),
				"reference":  next.SystemReference,
				"reason":     reason,
			}),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if already {
		return &WebhookResult{Event: event, Status: WebhookAlreadyProcessed, Payment: final.ID.String()}, nil
	}

	s.publishAll(ctx, evts)
	notifyType := domain.EventPaymentFailed
	if final.Status == domain.PaymentStatusReversed {
		notifyType = domain.EventPaymentReversed
	}
	s.notify(ctx, ownerID, notifyType, map[string]interface{}{
		"reference": final.SystemReference,
		"reason":    reason,
	})

	s.logger.Info("Withdrawal refunded", map[string]interface{}{
		"payment_id": final.ID,
		"reference":  final.SystemReference,
		"event":      event,
	})
	return &WebhookResult{Event: event, Status: WebhookProcessed, Payment: final.ID.String()}, nil
}

func (s *Service) notifyOwner(ctx context.Context, p domain.Payment, eventType string, data map[string]interface{}) {
	wallet, err := s.wallets.FindByID(ctx, p.WalletID)
	if err != nil {
		return
	}
	s.notify(ctx, wallet.UserID, eventType, data)
}
