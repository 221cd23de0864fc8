package handler

import (
	"context"
	"net/http"

	"github.com/sandeepkv93/credential-session-core/internal/http/response"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

type AdminHandler struct {
	accounts service.AccountServiceInterface
}

func NewAdminHandler(accounts service.AccountServiceInterface) *AdminHandler {
	return &AdminHandler{accounts: accounts}
}

func (h *AdminHandler) Inactivate(w http.ResponseWriter, r *http.Request) {
	h.userAction(w, r, "admin.user.inactivate", "inactivated", h.accounts.Inactivate)
}

func (h *AdminHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.userAction(w, r, "admin.user.reactivate", "active", h.accounts.Reactivate)
}

func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	h.userAction(w, r, "admin.user.reset_password", "password_reset", h.accounts.AdminResetPassword)
}

func (h *AdminHandler) userAction(w http.ResponseWriter, r *http.Request, event, status string, fn func(context.Context, uint) error) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := fn(r.Context(), userID); err != nil {
		observability.Audit(r, event, "failure", "actor_id", actor.UserID, "target_user_id", userID)
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, event, "success", "actor_id", actor.UserID, "target_user_id", userID)
	response.JSON(w, r, http.StatusOK, map[string]any{"user_id": userID, "status": status})
}
