package handler

import (
	"net/http"

	"github.com/sandeepkv93/credential-session-core/internal/domain"
	"github.com/sandeepkv93/credential-session-core/internal/http/response"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

// MeHandler serves the caller's own sessions and credentials.
type MeHandler struct {
	sessions service.SessionServiceInterface
	accounts service.AccountServiceInterface
}

func NewMeHandler(sessions service.SessionServiceInterface, accounts service.AccountServiceInterface) *MeHandler {
	return &MeHandler{sessions: sessions, accounts: accounts}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *MeHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	views, err := h.sessions.ListActiveSessions(r.Context(), id.UserID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	if views == nil {
		views = []service.SessionView{}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *MeHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	sessionID, ok := pathID(w, r, "session_id")
	if !ok {
		return
	}
	if err := h.sessions.RevokeSession(r.Context(), id.UserID, sessionID); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.revoke", "success", "user_id", id.UserID, "session_id", sessionID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *MeHandler) RevokeAllSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	n, err := h.sessions.RevokeAllSessions(r.Context(), id.UserID, domain.RevokeReasonUserRevoked)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.revoke_all", "success", "user_id", id.UserID, "revoked", n)
	response.JSON(w, r, http.StatusOK, map[string]int64{"revoked": n})
}

func (h *MeHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		observability.Audit(r, "account.change_password", "failure", "user_id", id.UserID)
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "account.change_password", "success", "user_id", id.UserID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "password_changed"})
}
