package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// KYCHandler serves the verification workflow: user submission and admin
// review.
type KYCHandler struct {
	kyc *service.KYCService
}

func NewKYCHandler(kyc *service.KYCService) *KYCHandler {
	return &KYCHandler{kyc: kyc}
}

// Submit handles POST /v1/kyc.
func (h *KYCHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	var req service.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	app, err := h.kyc.Submit(r.Context(), actorID, req)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, app)
}

// Mine handles GET /v1/kyc.
func (h *KYCHandler) Mine(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	app, err := h.kyc.Application(r.Context(), actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, app)
}

// Pending handles GET /v1/admin/kyc/pending.
func (h *KYCHandler) Pending(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	apps, err := h.kyc.PendingApplications(r.Context(), limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"applications": apps})
}

// Review handles POST /v1/admin/kyc/{accountID}/review.
func (h *KYCHandler) Review(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid account id")
		return
	}
	var req struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	var app interface{}
	if req.Approve {
		app, err = h.kyc.Approve(r.Context(), accountID)
	} else {
		app, err = h.kyc.Reject(r.Context(), accountID, req.Reason)
	}
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, app)
}
