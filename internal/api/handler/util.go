package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayo6706/coinwallet/internal/api/middleware"
	"github.com/ayo6706/coinwallet/internal/api/problem"
	"github.com/ayo6706/coinwallet/internal/domain"
	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes an RFC 7807 problem response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	problem.Write(w, r, status, problem.Type(problemType), http.StatusText(status), message)
}

// RespondServiceError maps the service error taxonomy onto HTTP statuses.
func RespondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, problemType := classifyError(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		RespondError(w, r, status, problemType, "internal error")
		return
	}
	RespondError(w, r, status, problemType, err.Error())
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "request/validation"
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusNotFound, "account/not-found"
	case errors.Is(err, models.ErrTransactionNotFound):
		return http.StatusNotFound, "ledger/transaction-not-found"
	case errors.Is(err, models.ErrWithdrawalNotFound):
		return http.StatusNotFound, "withdrawal/not-found"
	case errors.Is(err, models.ErrKYCNotFound):
		return http.StatusNotFound, "kyc/not-found"
	case errors.Is(err, models.ErrAccountBlocked):
		return http.StatusForbidden, "account/blocked"
	case errors.Is(err, models.ErrActivationRequired):
		return http.StatusForbidden, "account/activation-required"
	case errors.Is(err, models.ErrKYCRequired):
		return http.StatusForbidden, "account/kyc-required"
	case errors.Is(err, models.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "ledger/insufficient-balance"
	case errors.Is(err, models.ErrWithdrawalBelowMinimum):
		return http.StatusUnprocessableEntity, "withdrawal/below-minimum"
	case errors.Is(err, models.ErrServiceUnavailable):
		return http.StatusConflict, "redeem/service-unavailable"
	case errors.Is(err, models.ErrPriceChanged):
		return http.StatusConflict, "redeem/price-changed"
	case errors.Is(err, models.ErrIdempotencyMismatch):
		return http.StatusConflict, "idempotency/key-conflict"
	case errors.Is(err, models.ErrInvalidWithdrawal):
		return http.StatusConflict, "withdrawal/invalid-state"
	case errors.Is(err, models.ErrKYCPending):
		return http.StatusConflict, "kyc/already-pending"
	case errors.Is(err, models.ErrKYCAlreadyApproved):
		return http.StatusConflict, "kyc/already-approved"
	case errors.Is(err, models.ErrDuplicateAccount):
		return http.StatusConflict, "account/already-exists"
	default:
		return http.StatusInternalServerError, "internal-server-error"
	}
}

func requestActor(r *http.Request) (uuid.UUID, bool, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return uuid.Nil, false, errors.New("missing user in auth context")
	}
	actorID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, false, errors.New("invalid user_id in auth context")
	}
	return actorID, middleware.UserRoleFromContext(r.Context()) == domain.RoleAdmin, nil
}

// requestKey prefers the Idempotency-Key header threaded through the
// middleware, falling back to a body-supplied key.
func requestKey(r *http.Request, bodyKey string) string {
	if key := middleware.IdempotencyKeyFromContext(r); key != "" {
		return key
	}
	return bodyKey
}
