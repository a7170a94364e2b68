package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/baharkarakas/mpesa-backend/internal/api/httpx"
	"github.com/baharkarakas/mpesa-backend/internal/auth"
)

// AuthHandler mints tokens without credentials. The router only mounts it
// when APP_ENV=dev; elsewhere tokens come from mpesactl.
type AuthHandler struct {
	TM *auth.TokenManager
}

func NewAuthHandler(tm *auth.TokenManager) *AuthHandler {
	return &AuthHandler{TM: tm}
}

type tokenReq struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *AuthHandler) DevToken(w http.ResponseWriter, r *http.Request) {
	var req tokenReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "user_id required", nil)
		return
	}
	if req.Role != "" && req.Role != auth.RoleUser && req.Role != auth.RoleAdmin {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "unknown role", nil)
		return
	}
	tok, exp, err := h.TM.Generate(req.UserID, req.Role)
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken: tok,
		ExpiresIn:   int64(time.Until(exp).Truncate(time.Second).Seconds()),
	})
}
