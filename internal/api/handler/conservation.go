package handler

import (
	"net/http"

	"github.com/ayo6706/coinwallet/internal/service"
)

// ConservationHandler exposes the ledger conservation report to operators.
type ConservationHandler struct {
	conservation *service.ConservationService
}

func NewConservationHandler(conservation *service.ConservationService) *ConservationHandler {
	return &ConservationHandler{conservation: conservation}
}

// Report handles GET /v1/admin/conservation.
func (h *ConservationHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.conservation.Report(r.Context())
	if err != nil {
		RespondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, report)
}
