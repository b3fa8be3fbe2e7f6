package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event types staged by use cases and published only after the enclosing
// unit of work has committed. Publishing before commit risks announcing a
// mutation that is later rolled back.
const (
	EventWalletCredited   = "wallet.credited"
	EventWalletDebited    = "wallet.debited"
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentReversed  = "payment.reversed"
	EventEscrowFunded     = "escrow.funded"
	EventEscrowReleased   = "escrow.released"
	EventEscrowDisputed   = "escrow.disputed"
)

// Event is a domain event destined for post-commit fan-out.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// NewEvent stamps an event with identity and time.
func NewEvent(eventType string, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}
