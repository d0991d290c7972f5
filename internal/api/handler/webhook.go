package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ayo6706/coinwallet/internal/service"
	"go.uber.org/zap"
)

// WebhookHandler receives HMAC-signed callbacks from the payment gateway and
// the payout rail.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// HandleActivation handles POST /v1/webhooks/activation.
func (h *WebhookHandler) HandleActivation(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.webhooks.HandleActivationWebhook)
}

// HandlePayoutResult handles POST /v1/webhooks/payout-result.
func (h *WebhookHandler) HandlePayoutResult(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, h.webhooks.HandlePayoutWebhook)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request, process func(ctx context.Context, payload []byte, signature string) error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "failed to read request body")
		return
	}
	signature := r.Header.Get("X-Webhook-Signature")
	if err := process(r.Context(), body, signature); err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "invalid signature")
			return
		}
		zap.L().Error("webhook processing failed", zap.String("path", r.URL.Path), zap.Error(err))
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
