package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "gigpay/pkg/errors"
)

func TestRespondDomainError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"wallet not found", pkgerrors.ErrWalletNotFound, http.StatusNotFound},
		{"payment not found", pkgerrors.ErrPaymentNotFound, http.StatusNotFound},
		{"escrow not found", pkgerrors.ErrEscrowNotFound, http.StatusNotFound},
		{"transaction not found", pkgerrors.ErrTransactionNotFound, http.StatusNotFound},
		{"not owner", pkgerrors.ErrUnauthorizedAccess, http.StatusForbidden},
		{"insufficient balance", pkgerrors.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{"deposit cap", pkgerrors.ErrDepositCapExceeded, http.StatusUnprocessableEntity},
		{"currency mismatch", pkgerrors.ErrCurrencyMismatch, http.StatusUnprocessableEntity},
		{"escrow amount mismatch", pkgerrors.ErrEscrowAmountMismatch, http.StatusUnprocessableEntity},
		{"payment state", pkgerrors.ErrInvalidPaymentState, http.StatusConflict},
		{"stale version", pkgerrors.ErrConcurrencyConflict, http.StatusConflict},
		{"duplicate reference", pkgerrors.ErrDuplicateReference, http.StatusConflict},
		{"bad signature", pkgerrors.ErrInvalidSignature, http.StatusUnauthorized},
		{"gateway down", pkgerrors.ErrGatewayFailure, http.StatusBadGateway},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondDomainError(rec, tc.err)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestRespondDomainError_Wrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	respondDomainError(rec, pkgerrors.Wrap(pkgerrors.ErrInvalidEscrowState, "escrow is already funded"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
