package handler

import (
	"errors"
	"io"
	"net/http"

	"gigpay/internal/gateway"
	"gigpay/internal/payment"
	pkgerrors "gigpay/pkg/errors"
	"gigpay/pkg/logger"
)

// webhookBodyLimit caps provider payloads. Real deliveries are a few KB.
const webhookBodyLimit = 512 * 1024

// WebhookHandler terminates provider callbacks. It is mounted outside the
// authenticated API surface; the HMAC signature is the only authentication.
type WebhookHandler struct {
	service *payment.Service
	logger  logger.Logger
}

func NewWebhookHandler(service *payment.Service, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: log}
}

// HandleProviderEvent processes a single webhook delivery. The body is read
// raw so the signature is computed over the exact bytes sent; parsing only
// happens after the signature checks out. Ignored and already-processed
// events still return 200 so the provider stops redelivering them.
func (h *WebhookHandler) HandleProviderEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	signature := r.Header.Get(gateway.SignatureHeader)
	result, err := h.service.ProcessWebhook(r.Context(), body, signature)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidSignature):
			respondError(w, http.StatusUnauthorized, "invalid signature")
		case errors.Is(err, pkgerrors.ErrPaymentNotFound):
			// Unknown reference: either a foreign event or a delivery that
			// raced initiation. 404 makes the provider retry later.
			respondError(w, http.StatusNotFound, "payment not found")
		default:
			h.logger.Error("Webhook processing failed", map[string]interface{}{
				"error": err.Error(),
			})
			respondError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}
