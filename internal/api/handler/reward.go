package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// RewardHandler serves the redeemable-service catalog and redemptions.
type RewardHandler struct {
	rewards *service.RewardService
}

func NewRewardHandler(rewards *service.RewardService) *RewardHandler {
	return &RewardHandler{rewards: rewards}
}

// ListServices handles GET /v1/services.
func (h *RewardHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.rewards.ListServices(r.Context(), true)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"services": services})
}

type redeemRequest struct {
	ServiceID   string `json:"service_id"`
	QuotedPrice int64  `json:"quoted_price"`
	Key         string `json:"idempotency_key,omitempty"`
}

// Redeem handles POST /v1/redeem. The quoted price is re-validated against
// the live catalog inside the debit transaction.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid service_id")
		return
	}
	tx, err := h.rewards.Redeem(r.Context(), actorID, serviceID, req.QuotedPrice, requestKey(r, req.Key))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}

type serviceRequest struct {
	Name           string `json:"name"`
	PointsRequired int64  `json:"points_required"`
	Active         bool   `json:"active"`
}

// CreateService handles POST /v1/admin/services.
func (h *RewardHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	svc, err := h.rewards.CreateService(r.Context(), req.Name, req.PointsRequired)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, svc)
}

// UpdateService handles PUT /v1/admin/services/{id}.
func (h *RewardHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid service id")
		return
	}
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	svc, err := h.rewards.UpdateService(r.Context(), id, req.Name, req.PointsRequired, req.Active)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, svc)
}
