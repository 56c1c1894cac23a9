package httptransport

import (
	"encoding/json"
	"net/http"

	idmodels "medguard/internal/identity/models"
	"medguard/internal/platform/middleware"
	"medguard/internal/transport/http/shared"
	dErrors "medguard/pkg/domain-errors"
)

type challengeRequest struct {
	Address string `json:"address"`
}

type challengeResponse struct {
	Message string `json:"message"`
}

// handleChallenge issues a fresh signing challenge for a wallet.
func (h *Handler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	message, err := h.identity.IssueChallenge(r.Context(), req.Address)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, challengeResponse{Message: message})
}

type verifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type verifyResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
	Role    string `json:"role"`
}

// handleVerify checks the signed challenge and mints a session token.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	session, err := h.identity.Verify(r.Context(), req.Address, req.Signature)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	token, err := h.tokens.IssueSessionToken(session, h.sessionTTL)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to issue session token",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(r.Context()),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to issue token"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, verifyResponse{
		Token:   token,
		Address: session.Address,
		Role:    string(session.Role),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	address := middleware.GetAddress(r.Context())
	if err := h.identity.Logout(r.Context(), address); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	Address string `json:"address"`
	Role    string `json:"role"`
}

// handleAssignRole lets the group manager enroll a principal.
func (h *Handler) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	role, err := idmodels.ParseRole(req.Role)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.identity.AssignRole(r.Context(), req.Address, role); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
