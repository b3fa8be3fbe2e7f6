// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Ledger subsystem errors
var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletAlreadyExists = errors.New("wallet already exists")
	ErrWalletNotActive     = errors.New("wallet is not active")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrEscrowNotFound      = errors.New("escrow account not found")
	ErrTransactionNotFound = errors.New("transaction not found")

	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrDepositCapExceeded  = errors.New("amount exceeds maximum single deposit")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrZeroBalance         = errors.New("wallet balance is zero")
	ErrOverReservation     = errors.New("reservation exceeds available balance")
	ErrOverRelease         = errors.New("release exceeds reserved balance")

	ErrInvalidPaymentState  = errors.New("invalid payment state transition")
	ErrInvalidEscrowState   = errors.New("invalid escrow state")
	ErrEscrowAmountMismatch = errors.New("escrow funding must match expected amount exactly")
	ErrEscrowLocked         = errors.New("escrow account is not open for this operation")

	ErrUnauthorizedAccess  = errors.New("unauthorized access")
	ErrConcurrencyConflict = errors.New("concurrent modification detected")
	ErrDuplicateReference  = errors.New("duplicate reference")
)

// Gateway and webhook errors
var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrGatewayFailure   = errors.New("payment gateway request failed")
)

// Transport errors
var (
	ErrDuplicateRequest = errors.New("duplicate request")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
