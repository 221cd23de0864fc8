package handler

import (
	"net/http"

	"github.com/sandeepkv93/credential-session-core/internal/http/response"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

// resetRequestedMessage is returned for every accepted request so callers
// cannot tell whether the email is registered.
const resetRequestedMessage = "if the account exists, a password reset link has been sent"

type PasswordResetHandler struct {
	resets service.PasswordResetServiceInterface
}

func NewPasswordResetHandler(resets service.PasswordResetServiceInterface) *PasswordResetHandler {
	return &PasswordResetHandler{resets: resets}
}

type resetRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.resets.RequestReset(r.Context(), req.Email); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "password_reset.request", "accepted")
	response.JSON(w, r, http.StatusAccepted, map[string]string{"message": resetRequestedMessage})
}

func (h *PasswordResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.resets.ConfirmReset(r.Context(), req.Token, req.NewPassword); err != nil {
		observability.Audit(r, "password_reset.confirm", "failure")
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "password_reset.confirm", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_reset"})
}
