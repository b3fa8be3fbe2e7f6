package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"gigpay/pkg/errors"
)

type EscrowStatus string

const (
	EscrowStatusHeld     EscrowStatus = "held"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusDisputed EscrowStatus = "disputed"
	EscrowStatusClosed   EscrowStatus = "closed"
)

// EscrowAccount is a contract-scoped holding account. A creator funds it with
// exactly the agreed contract amount; it is released exactly once to the
// freelancer. Funding and release are legal only while the account is locked.
type EscrowAccount struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	ContractID     uuid.UUID    `json:"contract_id" db:"contract_id"`
	CreatorID      uuid.UUID    `json:"creator_id" db:"creator_id"`
	FreelancerID   uuid.UUID    `json:"freelancer_id" db:"freelancer_id"`
	Balance        int64        `json:"balance" db:"balance"`
	ExpectedAmount int64        `json:"expected_amount" db:"expected_amount"`
	Currency       Currency     `json:"currency" db:"currency"`
	Status         EscrowStatus `json:"status" db:"status"`
	Locked         bool         `json:"locked" db:"locked"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// NewEscrowAccount opens a held, locked escrow for a freshly formed contract.
func NewEscrowAccount(contractID, creatorID, freelancerID uuid.UUID, expectedAmount int64, currency Currency) (EscrowAccount, error) {
	if expectedAmount <= 0 {
		return EscrowAccount{}, errors.ErrInvalidAmount
	}
	now := time.Now().UTC()
	return EscrowAccount{
		ID:             uuid.New(),
		ContractID:     contractID,
		CreatorID:      creatorID,
		FreelancerID:   freelancerID,
		Balance:        0,
		ExpectedAmount: expectedAmount,
		Currency:       currency,
		Status:         EscrowStatusHeld,
		Locked:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (e EscrowAccount) touched() EscrowAccount {
	e.UpdatedAt = time.Now().UTC()
	return e
}

// Fund credits the escrow. It succeeds only when the resulting balance equals
// the expected amount exactly: no partial funding, no over-funding. This is
// deliberately stricter than wallet funding so contract amounts cannot drift.
func (e EscrowAccount) Fund(amount int64) (EscrowAccount, error) {
	if !e.Locked {
		return e, errors.ErrEscrowLocked
	}
	if e.Status != EscrowStatusHeld {
		return e, errors.Wrap(errors.ErrInvalidEscrowState,
			fmt.Sprintf("escrow for contract %s is %s", e.ContractID, e.Status))
	}
	if amount <= 0 {
		return e, errors.ErrInvalidAmount
	}
	if e.Balance+amount != e.ExpectedAmount {
		return e, errors.ErrEscrowAmountMismatch
	}
	e.Balance += amount
	return e.touched(), nil
}

// Release zeroes the balance and returns the payout the caller must credit
// to the freelancer's wallet inside the same unit of work.
func (e EscrowAccount) Release() (EscrowAccount, int64, error) {
	if !e.Locked {
		return e, 0, errors.ErrEscrowLocked
	}
	if e.Status != EscrowStatusHeld && e.Status != EscrowStatusDisputed {
		return e, 0, errors.Wrap(errors.ErrInvalidEscrowState,
			fmt.Sprintf("escrow for contract %s is %s", e.ContractID, e.Status))
	}
	payout := e.Balance
	e.Balance = 0
	e.Status = EscrowStatusReleased
	e.Locked = false
	return e.touched(), payout, nil
}

// Lock re-enables funding/release eligibility.
func (e EscrowAccount) Lock() EscrowAccount {
	e.Locked = true
	return e.touched()
}

// Unlock suspends funding/release eligibility.
func (e EscrowAccount) Unlock() EscrowAccount {
	e.Locked = false
	return e.touched()
}

// MarkAsDisputed freezes the escrow pending resolution.
func (e EscrowAccount) MarkAsDisputed() (EscrowAccount, error) {
	if e.Status == EscrowStatusReleased || e.Status == EscrowStatusClosed {
		return e, errors.Wrap(errors.ErrInvalidEscrowState,
			fmt.Sprintf("escrow for contract %s is already %s", e.ContractID, e.Status))
	}
	e.Status = EscrowStatusDisputed
	e.Locked = true
	return e.touched(), nil
}
