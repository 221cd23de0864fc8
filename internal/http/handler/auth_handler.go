package handler

import (
	"net/http"

	"github.com/sandeepkv93/credential-session-core/internal/http/middleware"
	"github.com/sandeepkv93/credential-session-core/internal/http/response"
	"github.com/sandeepkv93/credential-session-core/internal/observability"
	"github.com/sandeepkv93/credential-session-core/internal/service"
)

type AuthHandler struct {
	auth service.AuthServiceInterface
}

func NewAuthHandler(auth service.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bind(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		observability.Audit(r, "auth.login", "failure")
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.login", "success", "user_id", res.User.ID)
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bind(w, r, &req) {
		return
	}
	res, err := h.auth.Refresh(r.Context(), req.RefreshToken, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		observability.Audit(r, "auth.refresh", "failure")
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout", "success")
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	n, err := h.auth.LogoutAll(r.Context(), id.UserID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout_all", "success", "user_id", id.UserID, "revoked", n)
	response.JSON(w, r, http.StatusOK, map[string]int64{"revoked": n})
}
