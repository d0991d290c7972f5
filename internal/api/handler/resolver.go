package handler

import (
	"io"
	"net/http"

	"github.com/ayo6706/coinwallet/internal/models"
	"github.com/ayo6706/coinwallet/internal/service"
)

// ResolverHandler resolves QR payloads and manual identifiers into transfer
// recipients.
type ResolverHandler struct {
	resolver *service.ResolverService
}

func NewResolverHandler(resolver *service.ResolverService) *ResolverHandler {
	return &ResolverHandler{resolver: resolver}
}

type resolvedAccount struct {
	AccountID string `json:"account_id"`
	UniqueID  string `json:"unique_id"`
	Name      string `json:"name"`
}

// ResolveQR handles POST /v1/resolve/qr with the raw scanned payload as the
// request body.
func (h *ResolverHandler) ResolveQR(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "failed to read request body")
		return
	}
	account, err := h.resolver.ResolveQR(r.Context(), body)
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, toResolved(account))
}

// ResolveManual handles GET /v1/resolve?identifier=....
func (h *ResolverHandler) ResolveManual(w http.ResponseWriter, r *http.Request) {
	account, err := h.resolver.ResolveManual(r.Context(), r.URL.Query().Get("identifier"))
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, toResolved(account))
}

func toResolved(a *models.Account) resolvedAccount {
	return resolvedAccount{
		AccountID: a.ID.String(),
		UniqueID:  a.UniqueID,
		Name:      a.Name,
	}
}
