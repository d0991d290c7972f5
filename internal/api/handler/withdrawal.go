package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WithdrawalHandler serves the withdrawal workflow: user request and cancel,
// admin approval.
type WithdrawalHandler struct {
	withdrawals *service.WithdrawalService
}

func NewWithdrawalHandler(withdrawals *service.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawals: withdrawals}
}

type withdrawalRequest struct {
	Amount      int64              `json:"amount"`
	BankDetails models.BankDetails `json:"bank_details"`
	Key         string             `json:"idempotency_key,omitempty"`
}

// Request handles POST /v1/withdrawals.
func (h *WithdrawalHandler) Request(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	var req withdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	wd, err := h.withdrawals.Request(r.Context(), actorID, req.Amount, req.BankDetails, requestKey(r, req.Key))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, wd)
}

// List handles GET /v1/withdrawals.
func (h *WithdrawalHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	list, err := h.withdrawals.ListForAccount(r.Context(), actorID, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"withdrawals": list})
}

// Cancel handles POST /v1/withdrawals/{id}/cancel. Only the owner may cancel,
// and only before processing begins.
func (h *WithdrawalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, isAdmin, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid withdrawal id")
		return
	}
	wd, err := h.withdrawals.Withdrawal(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	if wd.AccountID != actorID && !isAdmin {
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", "not your withdrawal")
		return
	}
	cancelled, err := h.withdrawals.Cancel(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, cancelled)
}

// Approve handles POST /v1/admin/withdrawals/{id}/approve.
func (h *WithdrawalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid withdrawal id")
		return
	}
	wd, err := h.withdrawals.Approve(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, wd)
}

// Fail handles POST /v1/admin/withdrawals/{id}/fail, for manual failure with
// a reason when the rail cannot complete a transfer.
func (h *WithdrawalHandler) Fail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid withdrawal id")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	if err := h.withdrawals.Fail(r.Context(), id, req.Reason); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	wd, err := h.withdrawals.Withdrawal(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, wd)
}
