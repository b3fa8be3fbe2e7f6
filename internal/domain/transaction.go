package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "gigpay/pkg/errors"
)

type TransactionType string

const (
	TransactionTypeCredit TransactionType = "credit"
	TransactionTypeDebit  TransactionType = "debit"
)

// Transaction sources describe which business event moved the money.
const (
	SourceTopUp            = "topup"
	SourceWithdrawal       = "withdrawal"
	SourceWithdrawalRefund = "withdrawal_refund"
	SourceEscrowFunding    = "escrow_funding"
	SourceEscrowRelease    = "escrow_release"
)

// Metadata is a JSON-compatible map
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &m)
}

// Transaction is an immutable ledger record, appended whenever a wallet
// balance changes because of a payment or escrow event. Rows are never
// updated or deleted; the ledger is the reconciliation source of truth,
// independent of current wallet balances. Each row carries its own
// SystemReference so ledger-write idempotency holds on its own.
type Transaction struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	WalletID          uuid.UUID       `json:"wallet_id" db:"wallet_id"`
	PaymentID         *uuid.UUID      `json:"payment_id,omitempty" db:"payment_id"`
	Type              TransactionType `json:"type" db:"type"`
	Amount            int64           `json:"amount" db:"amount"`
	Currency          Currency        `json:"currency" db:"currency"`
	Status            string          `json:"status" db:"status"`
	SystemReference   string          `json:"system_reference" db:"system_reference"`
	ProviderReference *string         `json:"provider_reference,omitempty" db:"provider_reference"`
	Source            string          `json:"source" db:"source"`
	Metadata          Metadata        `json:"metadata" db:"metadata"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
}

// NewTransaction builds a ledger record. systemReference must be unique per
// balance-affecting event.
func NewTransaction(walletID uuid.UUID, paymentID *uuid.UUID, txType TransactionType, amount int64, currency Currency, systemReference, source string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, pkgerrors.ErrInvalidAmount
	}
	if systemReference == "" {
		return Transaction{}, pkgerrors.ErrDuplicateReference
	}
	return Transaction{
		ID:              uuid.New(),
		WalletID:        walletID,
		PaymentID:       paymentID,
		Type:            txType,
		Amount:          amount,
		Currency:        currency,
		Status:          "completed",
		SystemReference: systemReference,
		Source:          source,
		Metadata:        Metadata{},
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// WithProviderReference annotates the record with the gateway reference.
func (t Transaction) WithProviderReference(ref string) Transaction {
	t.ProviderReference = &ref
	return t
}
