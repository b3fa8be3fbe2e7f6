package domain

import (
	"time"

	"github.com/google/uuid"

	"gigpay/pkg/errors"
)

type WalletStatus string

const (
	WalletStatusActive    WalletStatus = "active"
	WalletStatusSuspended WalletStatus = "suspended"
	WalletStatusClosed    WalletStatus = "closed"
)

// Wallet holds a user's balance and reserved funds in minor units.
// Wallets are values: every mutation returns a new Wallet with Version
// advanced by one, and persistence is conditioned on the previous version.
// Invariant at all times: Balance >= Reserved >= 0.
type Wallet struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	UserID    uuid.UUID    `json:"user_id" db:"user_id"`
	Status    WalletStatus `json:"status" db:"status"`
	Balance   int64        `json:"balance" db:"balance"`
	Reserved  int64        `json:"reserved" db:"reserved"`
	Currency  Currency     `json:"currency" db:"currency"`
	Version   int64        `json:"version" db:"version"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// NewWallet creates an empty active wallet for a user.
func NewWallet(userID uuid.UUID, currency Currency) Wallet {
	now := time.Now().UTC()
	return Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    WalletStatusActive,
		Balance:   0,
		Reserved:  0,
		Currency:  currency,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Available is the spendable portion of the balance.
func (w Wallet) Available() int64 {
	return w.Balance - w.Reserved
}

func (w Wallet) guard(amount int64) error {
	if w.Status != WalletStatusActive {
		return errors.ErrWalletNotActive
	}
	if amount <= 0 {
		return errors.ErrInvalidAmount
	}
	return nil
}

func (w Wallet) bumped() Wallet {
	w.Version++
	w.UpdatedAt = time.Now().UTC()
	return w
}

// Fund credits the balance. maxDeposit caps a single credit in minor units;
// a non-positive maxDeposit disables the cap (gateway-confirmed settlements
// have already passed the cap at initiation).
func (w Wallet) Fund(amount, maxDeposit int64) (Wallet, error) {
	if err := w.guard(amount); err != nil {
		return w, err
	}
	if maxDeposit > 0 && amount > maxDeposit {
		return w, errors.ErrDepositCapExceeded
	}
	w.Balance += amount
	return w.bumped(), nil
}

// Debit removes spendable funds. Reserved funds are untouchable here.
func (w Wallet) Debit(amount int64) (Wallet, error) {
	if err := w.guard(amount); err != nil {
		return w, err
	}
	if amount > w.Available() {
		return w, errors.ErrInsufficientBalance
	}
	w.Balance -= amount
	return w.bumped(), nil
}

// Reserve moves funds from available to reserved without changing the total.
func (w Wallet) Reserve(amount int64) (Wallet, error) {
	if err := w.guard(amount); err != nil {
		return w, err
	}
	if amount > w.Available() {
		return w, errors.ErrOverReservation
	}
	w.Reserved += amount
	return w.bumped(), nil
}

// ReleaseReserved moves funds back from reserved to available.
func (w Wallet) ReleaseReserved(amount int64) (Wallet, error) {
	if err := w.guard(amount); err != nil {
		return w, err
	}
	if amount > w.Reserved {
		return w, errors.ErrOverRelease
	}
	w.Reserved -= amount
	return w.bumped(), nil
}

// CheckBalance fails when the wallet holds nothing at all. Used as a guard
// before spending operations.
func (w Wallet) CheckBalance() error {
	if w.Status != WalletStatusActive {
		return errors.ErrWalletNotActive
	}
	if w.Balance == 0 {
		return errors.ErrZeroBalance
	}
	return nil
}
