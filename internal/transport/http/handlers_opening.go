package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"medguard/internal/groupsig"
	idmodels "medguard/internal/identity/models"
	"medguard/internal/platform/middleware"
	"medguard/internal/transport/http/shared"
	dErrors "medguard/pkg/domain-errors"
)

type openingRequest struct {
	CID    string `json:"cid"`
	Reason string `json:"reason"`
}

func (h *Handler) handleRequestOpening(w http.ResponseWriter, r *http.Request) {
	var req openingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	opening, err := h.opening.Request(r.Context(), middleware.GetAddress(r.Context()), req.CID, req.Reason)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, opening)
}

// handleSubmitPartial contributes the caller's share. Which share is
// determined by the caller's role, so neither authority can submit the
// other's partial.
func (h *Handler) handleSubmitPartial(w http.ResponseWriter, r *http.Request) {
	var opener groupsig.Opener
	switch middleware.GetRole(r.Context()) {
	case string(idmodels.RoleGroupManager):
		opener = groupsig.OpenerGroupManager
	case string(idmodels.RoleRevocationManager):
		opener = groupsig.OpenerRevocationManager
	default:
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role cannot contribute partial openings"))
		return
	}

	opening, err := h.opening.SubmitPartial(r.Context(), chi.URLParam(r, "id"), opener)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, opening)
}

// handleOpeningResult hands the recovered identity back, and only to
// the principal who filed the opening request.
func (h *Handler) handleOpeningResult(w http.ResponseWriter, r *http.Request) {
	opening, err := h.opening.Result(r.Context(), middleware.GetAddress(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, opening)
}

type resolveRequest struct {
	GrantID   string `json:"grant_id"`
	Pseudonym string `json:"pseudonym"`
}

type resolveResponse struct {
	Address string `json:"address"`
}

// handleResolvePseudonym consumes a resolution grant minted by a
// combined opening.
func (h *Handler) handleResolvePseudonym(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	address, err := h.pseudonyms.Resolve(r.Context(), req.GrantID, req.Pseudonym)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, resolveResponse{Address: address})
}
