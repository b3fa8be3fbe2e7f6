// Package handler provides HTTP handlers for the gigpay ledger API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "gigpay/pkg/errors"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDomainError maps ledger errors onto the API's status taxonomy:
// missing aggregates are 404, rejected business rules are 422, state and
// uniqueness collisions are 409, ownership violations are 403.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrWalletNotFound),
		errors.Is(err, pkgerrors.ErrPaymentNotFound),
		errors.Is(err, pkgerrors.ErrEscrowNotFound),
		errors.Is(err, pkgerrors.ErrTransactionNotFound):
		respondError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, pkgerrors.ErrUnauthorizedAccess):
		respondError(w, http.StatusForbidden, err.Error())

	case errors.Is(err, pkgerrors.ErrInvalidAmount),
		errors.Is(err, pkgerrors.ErrDepositCapExceeded),
		errors.Is(err, pkgerrors.ErrInsufficientBalance),
		errors.Is(err, pkgerrors.ErrZeroBalance),
		errors.Is(err, pkgerrors.ErrOverReservation),
		errors.Is(err, pkgerrors.ErrOverRelease),
		errors.Is(err, pkgerrors.ErrWalletNotActive),
		errors.Is(err, pkgerrors.ErrEscrowAmountMismatch),
		errors.Is(err, pkgerrors.ErrCurrencyMismatch):
		respondError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, pkgerrors.ErrInvalidPaymentState),
		errors.Is(err, pkgerrors.ErrInvalidEscrowState),
		errors.Is(err, pkgerrors.ErrEscrowLocked),
		errors.Is(err, pkgerrors.ErrConcurrencyConflict),
		errors.Is(err, pkgerrors.ErrDuplicateReference),
		errors.Is(err, pkgerrors.ErrWalletAlreadyExists),
		errors.Is(err, pkgerrors.ErrDuplicateRequest):
		respondError(w, http.StatusConflict, err.Error())

	case errors.Is(err, pkgerrors.ErrInvalidSignature):
		respondError(w, http.StatusUnauthorized, err.Error())

	case errors.Is(err, pkgerrors.ErrGatewayFailure):
		respondError(w, http.StatusBadGateway, "payment provider is unavailable")

	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pagination(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
