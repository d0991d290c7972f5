package handler

import (
	"encoding/json"
	"net/http"

	"github.com/ayo6706/coinwallet/internal/service"
	"github.com/google/uuid"
)

// TransferHandler serves coin transfers between accounts.
type TransferHandler struct {
	ledger   *service.LedgerService
	resolver *service.ResolverService
}

func NewTransferHandler(ledger *service.LedgerService, resolver *service.ResolverService) *TransferHandler {
	return &TransferHandler{ledger: ledger, resolver: resolver}
}

type transferRequest struct {
	ToAccountID  string `json:"to_account_id,omitempty"`
	ToIdentifier string `json:"to_identifier,omitempty"`
	Amount       int64  `json:"amount"`
	Note         string `json:"note,omitempty"`
	Key          string `json:"idempotency_key,omitempty"`
}

// Create handles POST /v1/transfers. The recipient is either a resolved
// account id or a raw identifier (unique id or phone), resolved here so the
// ledger never sees an unvalidated recipient.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, _, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-context", err.Error())
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "invalid request body")
		return
	}

	var toID uuid.UUID
	switch {
	case req.ToAccountID != "":
		toID, err = uuid.Parse(req.ToAccountID)
		if err != nil {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "invalid to_account_id")
			return
		}
	case req.ToIdentifier != "":
		recipient, rerr := h.resolver.ResolveManual(r.Context(), req.ToIdentifier)
		if rerr != nil {
			RespondServiceError(w, r, rerr)
			return
		}
		toID = recipient.ID
	default:
		RespondError(w, r, http.StatusBadRequest, "request/validation", "to_account_id or to_identifier is required")
		return
	}

	tx, err := h.ledger.Transfer(r.Context(), actorID, toID, req.Amount, req.Note, requestKey(r, req.Key))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, tx)
}
