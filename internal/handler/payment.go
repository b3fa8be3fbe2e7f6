package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"gigpay/internal/middleware"
	"gigpay/internal/payment"
	"gigpay/pkg/logger"
	"gigpay/pkg/validator"
)

// PaymentHandler manages top-up and withdrawal endpoints.
type PaymentHandler struct {
	service   *payment.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewPaymentHandler(service *payment.Service, val *validator.Validator, log logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// InitiateTopUp starts a wallet top-up via the payment provider.
func (h *PaymentHandler) InitiateTopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req payment.InitiateTopUpRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		if email, ok := middleware.EmailFromContext(r.Context()); ok {
			req.Email = email
		}
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.InitiateTopUp(r.Context(), userID, &req)
	if err != nil {
		h.logger.Error("Failed to initiate top-up", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

// VerifyTopUp re-checks a pending top-up against the provider.
func (h *PaymentHandler) VerifyTopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	reference := mux.Vars(r)["reference"]
	if reference == "" {
		respondError(w, http.StatusBadRequest, "Reference is required")
		return
	}

	p, err := h.service.VerifyTopUp(r.Context(), userID, reference)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// InitiateWithdrawal starts a payout to the caller's bank recipient.
func (h *PaymentHandler) InitiateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req payment.InitiateWithdrawalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.service.InitiateWithdrawal(r.Context(), userID, &req)
	if err != nil {
		h.logger.Error("Failed to initiate withdrawal", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelPayment cancels a non-terminal top-up.
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	paymentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	var req cancelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by user"
	}

	p, err := h.service.CancelPayment(r.Context(), userID, paymentID, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// GetPayment returns a payment, owner only.
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	paymentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	p, err := h.service.GetPayment(r.Context(), userID, paymentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// ListWalletPayments lists payments against a wallet.
func (h *PaymentHandler) ListWalletPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	walletID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid wallet ID")
		return
	}

	limit, offset := pagination(r)
	payments, err := h.service.ListWalletPayments(r.Context(), userID, walletID, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"payments": payments,
		"count":    len(payments),
		"limit":    limit,
		"offset":   offset,
	})
}
