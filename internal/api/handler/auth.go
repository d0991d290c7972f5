package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayo6706/coinwallet/internal/api/middleware"
	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthHandler issues JWTs and triggers the daily login reward. Login is by
// phone number only; credential verification (OTP) sits in front of this
// service and is out of scope here.
type AuthHandler struct {
	accounts *service.AccountService
	rewards  *service.RewardService
	issuer   string
	audience string
}

func NewAuthHandler(accounts *service.AccountService, rewards *service.RewardService, issuer, audience string) *AuthHandler {
	return &AuthHandler{accounts: accounts, rewards: rewards, issuer: issuer, audience: audience}
}

type loginResponse struct {
	Token         string `json:"token"`
	RewardGranted bool   `json:"reward_granted"`
	RewardAmount  int64  `json:"reward_amount,omitempty"`
}

// Login handles POST /v1/auth/login. The first successful login per UTC day
// also issues the tier-dependent daily reward.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	account, err := h.accounts.GetByPhone(r.Context(), req.Phone)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": account.ID.String(),
		"role":    account.Role,
		"iss":     h.issuer,
		"aud":     h.audience,
		"sub":     account.ID.String(),
		"iat":     now.Unix(),
		"exp":     now.Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString(middleware.JWTSecret())
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "auth/sign-failed", "failed to sign token")
		return
	}

	resp := loginResponse{Token: tokenString}
	reward, granted, err := h.rewards.GrantDailyLogin(r.Context(), account.ID, now)
	if err != nil {
		// The login itself succeeded; the reward can be granted on the next
		// login attempt today.
		zap.L().Error("daily reward grant failed", zap.Error(err), zap.String("account_id", account.ID.String()))
	} else if granted {
		resp.RewardGranted = true
		resp.RewardAmount = reward.Amount
	}

	RespondJSON(w, http.StatusOK, resp)
}
