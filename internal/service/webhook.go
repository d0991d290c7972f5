package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidSignature = errors.New("invalid signature")

// WebhookService verifies and dispatches callbacks from external systems:
// the payment gateway's activation-completed event and the payout rail's
// transfer result.
type WebhookService struct {
	rewards     *RewardService
	withdrawals *WithdrawalService
	hmacKey     []byte
	skipSig     bool
}

func NewWebhookService(rewards *RewardService, withdrawals *WithdrawalService, hmacKey string, skipSignature bool) *WebhookService {
	return &WebhookService{
		rewards:     rewards,
		withdrawals: withdrawals,
		hmacKey:     []byte(hmacKey),
		skipSig:     skipSignature,
	}
}

// ActivationWebhookPayload is the gateway's activation-completed event. The
// gateway owns order creation and payment verification; by the time this
// event arrives the activation fee is settled.
type ActivationWebhookPayload struct {
	Event     string `json:"event"`
	AccountID string `json:"account_id"`
	Reference string `json:"reference"`
}

// HandleActivationWebhook verifies the signature and flips activation plus
// the bonus credits. Redelivery is safe: the credits are keyed.
func (s *WebhookService) HandleActivationWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.verifyHMAC(payload, signature) {
		return ErrInvalidSignature
	}
	var ev ActivationWebhookPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: invalid payload", models.ErrValidation)
	}
	if ev.Event != "activation.completed" {
		return fmt.Errorf("%w: unsupported event %q", models.ErrValidation, ev.Event)
	}
	accountID, err := uuid.Parse(strings.TrimSpace(ev.AccountID))
	if err != nil {
		return fmt.Errorf("%w: invalid account_id", models.ErrValidation)
	}
	zap.L().Info("activation webhook received",
		zap.String("account_id", accountID.String()),
		zap.String("reference", ev.Reference),
	)
	return s.rewards.HandleActivationCompleted(ctx, accountID)
}

// PayoutWebhookPayload is the rail's transfer result callback.
type PayoutWebhookPayload struct {
	WithdrawalID string `json:"withdrawal_id"`
	Status       string `json:"status"` // "success" or "failed"
	PayoutID     string `json:"payout_id"`
	Reason       string `json:"reason"`
}

// HandlePayoutWebhook verifies the signature and records the payout outcome.
func (s *WebhookService) HandlePayoutWebhook(ctx context.Context, payload []byte, signature string) error {
	if !s.verifyHMAC(payload, signature) {
		return ErrInvalidSignature
	}
	var ev PayoutWebhookPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("%w: invalid payload", models.ErrValidation)
	}
	withdrawalID, err := uuid.Parse(strings.TrimSpace(ev.WithdrawalID))
	if err != nil {
		return fmt.Errorf("%w: invalid withdrawal_id", models.ErrValidation)
	}
	switch ev.Status {
	case "success":
		return s.withdrawals.HandlePayoutResult(ctx, withdrawalID, true, ev.PayoutID, "")
	case "failed":
		return s.withdrawals.HandlePayoutResult(ctx, withdrawalID, false, ev.PayoutID, ev.Reason)
	default:
		return fmt.Errorf("%w: unsupported payout status %q", models.ErrValidation, ev.Status)
	}
}

func (s *WebhookService) verifyHMAC(payload []byte, signature string) bool {
	if s.skipSig {
		return true
	}
	if len(s.hmacKey) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
