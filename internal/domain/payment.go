package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"gigpay/pkg/errors"
)

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSuccess   PaymentStatus = "success"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusReversed  PaymentStatus = "reversed"
)

type PaymentDirection string

const (
	DirectionIncoming PaymentDirection = "incoming"
	DirectionOutgoing PaymentDirection = "outgoing"
)

// paymentTransitions is the full allowed-transition table. Anything absent
// here is illegal; there is no other transition logic.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusInitiated: {PaymentStatusPending, PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusPending:   {PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusSuccess:   {PaymentStatusReversed},
	PaymentStatusFailed:    {},
	PaymentStatusCancelled: {},
	PaymentStatusReversed:  {},
}

func (s PaymentStatus) canTransitionTo(target PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition except reversal is possible.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFailed ||
		s == PaymentStatusCancelled || s == PaymentStatusReversed
}

// Payment tracks a single gateway transaction attempt (top-up or withdrawal).
// SystemReference is generated at creation and never changes; it is the
// idempotency key the platform controls. ProviderReference is set once the
// gateway accepts the transaction and correlates inbound webhooks.
type Payment struct {
	ID                uuid.UUID        `json:"id" db:"id"`
	WalletID          uuid.UUID        `json:"wallet_id" db:"wallet_id"`
	SystemReference   string           `json:"system_reference" db:"system_reference"`
	Provider          string           `json:"provider" db:"provider"`
	Amount            int64            `json:"amount" db:"amount"`
	Currency          Currency         `json:"currency" db:"currency"`
	Direction         PaymentDirection `json:"direction" db:"direction"`
	Channel           string           `json:"channel" db:"channel"`
	Status            PaymentStatus    `json:"status" db:"status"`
	ProviderReference *string          `json:"provider_reference,omitempty" db:"provider_reference"`
	CancelReason      *string          `json:"cancel_reason,omitempty" db:"cancel_reason"`
	FailedReason      *string          `json:"failed_reason,omitempty" db:"failed_reason"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// NewPayment creates a payment in the initiated state with a fresh
// system reference.
func NewPayment(walletID uuid.UUID, provider string, amount int64, currency Currency, direction PaymentDirection, channel string) (Payment, error) {
	if amount <= 0 {
		return Payment{}, errors.ErrInvalidAmount
	}
	now := time.Now().UTC()
	return Payment{
		ID:              uuid.New(),
		WalletID:        walletID,
		SystemReference: GenerateReference(),
		Provider:        provider,
		Amount:          amount,
		Currency:        currency,
		Direction:       direction,
		Channel:         channel,
		Status:          PaymentStatusInitiated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// GenerateReference produces a platform-scoped unique reference.
func GenerateReference() string {
	return fmt.Sprintf("GP-%d-%s", time.Now().Unix(), uuid.NewString()[:8])
}

func (p Payment) transition(target PaymentStatus) (Payment, error) {
	if !p.Status.canTransitionTo(target) {
		return p, errors.Wrap(errors.ErrInvalidPaymentState,
			fmt.Sprintf("cannot move payment %s from %s to %s", p.SystemReference, p.Status, target))
	}
	p.Status = target
	p.UpdatedAt = time.Now().UTC()
	return p, nil
}

// AttachProviderReference records the gateway's reference for this payment.
func (p Payment) AttachProviderReference(ref string) Payment {
	p.ProviderReference = &ref
	p.UpdatedAt = time.Now().UTC()
	return p
}

// MarkAsPending is legal only from the initiated state.
func (p Payment) MarkAsPending() (Payment, error) {
	if p.Status != PaymentStatusInitiated {
		return p, errors.Wrap(errors.ErrInvalidPaymentState,
			fmt.Sprintf("cannot mark payment %s pending from %s", p.SystemReference, p.Status))
	}
	return p.transition(PaymentStatusPending)
}

// MarkAsSuccess is legal from pending or initiated.
func (p Payment) MarkAsSuccess() (Payment, error) {
	return p.transition(PaymentStatusSuccess)
}

// MarkAsFailed records the failure reason. Illegal once successful.
func (p Payment) MarkAsFailed(reason string) (Payment, error) {
	next, err := p.transition(PaymentStatusFailed)
	if err != nil {
		return p, err
	}
	next.FailedReason = &reason
	return next, nil
}

// Cancel is legal only while initiated or pending.
func (p Payment) Cancel(reason string) (Payment, error) {
	next, err := p.transition(PaymentStatusCancelled)
	if err != nil {
		return p, err
	}
	next.CancelReason = &reason
	return next, nil
}

// MarkAsReversed applies a gateway reversal of a successful withdrawal.
func (p Payment) MarkAsReversed(reason string) (Payment, error) {
	if p.Direction != DirectionOutgoing {
		return p, errors.Wrap(errors.ErrInvalidPaymentState,
			fmt.Sprintf("payment %s is not a withdrawal, cannot reverse", p.SystemReference))
	}
	next, err := p.transition(PaymentStatusReversed)
	if err != nil {
		return p, err
	}
	next.FailedReason = &reason
	return next, nil
}
