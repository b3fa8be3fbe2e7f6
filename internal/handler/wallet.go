package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"gigpay/internal/middleware"
	"gigpay/internal/wallet"
	"gigpay/pkg/cache"
	"gigpay/pkg/logger"
	"gigpay/pkg/validator"
)

// balanceCacheTTL keeps balance reads cheap without letting them go very
// stale. Writes do not invalidate; the TTL bounds the staleness window.
const balanceCacheTTL = 10 * time.Second

// WalletHandler manages wallet endpoints.
type WalletHandler struct {
	service   *wallet.Service
	cache     *cache.RedisCache
	validator *validator.Validator
	logger    logger.Logger
}

func NewWalletHandler(service *wallet.Service, c *cache.RedisCache, val *validator.Validator, log logger.Logger) *WalletHandler {
	return &WalletHandler{
		service:   service,
		cache:     c,
		validator: val,
		logger:    log,
	}
}

// CreateWallet provisions the caller's wallet.
func (h *WalletHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req wallet.CreateWalletRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.UserID = userID

	if err := h.validator.Validate(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.service.CreateWallet(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to create wallet", map[string]interface{}{
			"error":   err.Error(),
			"user_id": userID,
		})
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, created)
}

// GetWallet returns a wallet by ID, owner only.
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
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

	wlt, err := h.service.GetWallet(r.Context(), walletID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if wlt.UserID != userID {
		respondError(w, http.StatusForbidden, "unauthorized access")
		return
	}

	respondJSON(w, http.StatusOK, wlt)
}

// GetMyWallet returns the authenticated user's wallet.
func (h *WalletHandler) GetMyWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	wlt, err := h.service.GetUserWallet(r.Context(), userID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wlt)
}

// GetBalance returns a wallet balance summary, cached briefly.
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
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

	cacheKey := fmt.Sprintf("balance:%s:%s", userID, walletID)
	if h.cache != nil {
		var cached wallet.BalanceResponse
		if err := h.cache.Get(r.Context(), cacheKey, &cached); err == nil {
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	wlt, err := h.service.GetWallet(r.Context(), walletID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if wlt.UserID != userID {
		respondError(w, http.StatusForbidden, "unauthorized access")
		return
	}

	balance, err := h.service.GetBalance(r.Context(), walletID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(r.Context(), cacheKey, balance, balanceCacheTTL); err != nil {
			h.logger.Debug("Balance cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	respondJSON(w, http.StatusOK, balance)
}

// GetStatement lists the wallet's ledger transactions.
func (h *WalletHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
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
	txs, err := h.service.GetStatement(r.Context(), userID, walletID, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
		"limit":        limit,
		"offset":       offset,
	})
}
