package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AccountHandler serves account lifecycle and statement endpoints.
type AccountHandler struct {
	accounts *service.AccountService
	ledger   *service.LedgerService
	resolver *service.ResolverService
}

func NewAccountHandler(accounts *service.AccountService, ledger *service.LedgerService, resolver *service.ResolverService) *AccountHandler {
	return &AccountHandler{accounts: accounts, ledger: ledger, resolver: resolver}
}

// Signup handles POST /v1/accounts.
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.CreateAccountInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	account, err := h.accounts.Create(r.Context(), req)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, account)
}

// Me handles GET /v1/accounts/me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	account, err := h.accounts.Get(r.Context(), actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// Statement handles GET /v1/accounts/me/statement.
func (h *AccountHandler) Statement(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	txs, err := h.ledger.Statement(r.Context(), actorID, limit, offset)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"transactions": txs})
}

// MyQR handles GET /v1/accounts/me/qr, returning the payload this account
// presents for others to scan.
func (h *AccountHandler) MyQR(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	payload, err := h.resolver.MyQRPayload(r.Context(), actorID)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, payload)
}

// SetBlocked handles PUT /v1/admin/accounts/{id}/blocked.
func (h *AccountHandler) SetBlocked(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid account id")
		return
	}
	var req struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}
	if err := h.accounts.SetBlocked(r.Context(), id, req.Blocked); err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "blocked": req.Blocked})
}

// Get handles GET /v1/admin/accounts/{id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid account id")
		return
	}
	account, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}
