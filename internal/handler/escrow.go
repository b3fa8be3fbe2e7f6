package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"gigpay/internal/escrow"
	"gigpay/internal/middleware"
	"gigpay/pkg/logger"
	"gigpay/pkg/validator"
)

// EscrowHandler manages contract escrow endpoints.
type EscrowHandler struct {
	service   *escrow.Service
	validator *validator.Validator
	logger    logger.Logger
}

func NewEscrowHandler(service *escrow.Service, val *validator.Validator, log logger.Logger) *EscrowHandler {
	return &EscrowHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// CreateEscrow opens an escrow account for a contract, caller as creator.
func (h *EscrowHandler) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req escrow.CreateEscrowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	esc, err := h.service.CreateEscrow(r.Context(), userID, &req)
	if err != nil {
		h.logger.Error("Failed to create escrow", map[string]interface{}{
			"error":       err.Error(),
			"contract_id": req.ContractID,
		})
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, esc)
}

type fundEscrowRequest struct {
	WalletID uuid.UUID `json:"wallet_id"`
}

// FundEscrow moves the contract amount from the creator's wallet into escrow.
func (h *EscrowHandler) FundEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	escrowID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid escrow ID")
		return
	}

	var req fundEscrowRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.WalletID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "wallet_id is required")
		return
	}

	esc, err := h.service.FundEscrow(r.Context(), userID, escrowID, req.WalletID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, esc)
}

// ReleaseEscrow pays the escrow out to the freelancer.
func (h *EscrowHandler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	escrowID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid escrow ID")
		return
	}

	esc, err := h.service.ReleaseEscrow(r.Context(), userID, escrowID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, esc)
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

// DisputeEscrow freezes the escrow pending resolution.
func (h *EscrowHandler) DisputeEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	escrowID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid escrow ID")
		return
	}

	var req disputeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reason == "" {
		respondError(w, http.StatusBadRequest, "reason is required")
		return
	}

	esc, err := h.service.DisputeEscrow(r.Context(), userID, escrowID, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, esc)
}

// GetEscrow returns an escrow account, contract parties only.
func (h *EscrowHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	escrowID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid escrow ID")
		return
	}

	esc, err := h.service.GetEscrow(r.Context(), userID, escrowID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, esc)
}

// GetEscrowByContract looks an escrow up by its contract.
func (h *EscrowHandler) GetEscrowByContract(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	contractID, err := uuid.Parse(mux.Vars(r)["contract_id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid contract ID")
		return
	}

	esc, err := h.service.GetEscrowByContract(r.Context(), userID, contractID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, esc)
}
