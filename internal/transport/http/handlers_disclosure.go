package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	discmodels "medguard/internal/disclosure/models"
	discservice "medguard/internal/disclosure/service"
	"medguard/internal/platform/middleware"
	"medguard/internal/transport/http/shared"
	dErrors "medguard/pkg/domain-errors"
)

// handleRegisterTemplate stores a buyer's purchase template so sellers
// can disclose against it.
func (h *Handler) handleRegisterTemplate(w http.ResponseWriter, r *http.Request) {
	var template discmodels.PurchaseTemplate
	if err := json.NewDecoder(r.Body).Decode(&template); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	cid, err := h.disclosure.RegisterTemplate(r.Context(), middleware.GetAddress(r.Context()), template)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{"cid": cid})
}

func (h *Handler) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	template, err := h.disclosure.TemplateFor(r.Context(), chi.URLParam(r, "cid"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, template)
}

type discloseRequest struct {
	CIDs     []string                    `json:"cids"`
	Template discmodels.PurchaseTemplate `json:"template"`
}

// handleDisclose builds the selective disclosure of the patient's
// records for a purchase template.
func (h *Handler) handleDisclose(w http.ResponseWriter, r *http.Request) {
	var req discloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	disclosed, err := h.disclosure.Disclose(r.Context(), middleware.GetAddress(r.Context()), req.CIDs, req.Template)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, disclosed)
}

type verifyDisclosureRequest struct {
	Template discmodels.PurchaseTemplate  `json:"template"`
	Records  []discmodels.DisclosedRecord `json:"records"`
}

// handleVerifyDisclosure judges a disclosure on the buyer's behalf.
// An insufficient disclosure still returns the per-record verdicts so
// the buyer can pursue accountability for the failed records.
func (h *Handler) handleVerifyDisclosure(w http.ResponseWriter, r *http.Request) {
	var req verifyDisclosureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.disclosure.Verify(r.Context(), req.Template, req.Records)
	if err != nil {
		if errors.Is(err, discservice.ErrInsufficientValid) {
			shared.WriteJSON(w, http.StatusUnprocessableEntity, result)
			return
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
