package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	idmodels "medguard/internal/identity/models"
	"medguard/internal/platform/middleware"
	"medguard/internal/record"
	"medguard/internal/transport/http/shared"
	dErrors "medguard/pkg/domain-errors"
)

// handleCertify certifies a record authored by the authenticated
// doctor. The doctor identity comes from the session, never the body.
func (h *Handler) handleCertify(w http.ResponseWriter, r *http.Request) {
	var rec record.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	rec.DoctorID = middleware.GetAddress(r.Context())

	cert, err := h.certifier.Certify(r.Context(), rec)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, cert)
}

// handleListRecords lists the caller's record entries: a patient sees
// records about them, a doctor what they authored.
func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := middleware.GetAddress(ctx)

	switch middleware.GetRole(ctx) {
	case string(idmodels.RolePatient):
		entries, err := h.certifier.ListForPatient(ctx, address)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, entries)
	case string(idmodels.RoleDoctor):
		entries, err := h.certifier.ListForDoctor(ctx, address)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		shared.WriteJSON(w, http.StatusOK, entries)
	default:
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role has no record listing"))
	}
}

func (h *Handler) handleRetrieveRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.certifier.Retrieve(r.Context(), middleware.GetAddress(r.Context()), chi.URLParam(r, "cid"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}

type shareRequest struct {
	Recipient string `json:"recipient"`
}

type shareResponse struct {
	SharingCID string `json:"sharing_cid"`
}

func (h *Handler) handleShareRecord(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	sharingCID, err := h.certifier.Share(r.Context(),
		middleware.GetAddress(r.Context()), chi.URLParam(r, "cid"), req.Recipient)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, shareResponse{SharingCID: sharingCID})
}

func (h *Handler) handleRetrieveShared(w http.ResponseWriter, r *http.Request) {
	rec, err := h.certifier.RetrieveShared(r.Context(), middleware.GetAddress(r.Context()), chi.URLParam(r, "cid"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rec)
}
