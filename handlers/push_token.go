package handlers

import (
	"net/http"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/services"
)

// PushTokenHandler, cihazların push endpoint kayıtları.
type PushTokenHandler struct {
	pushTokenService services.PushTokenService
}

func NewPushTokenHandler(pushTokenService services.PushTokenService) *PushTokenHandler {
	return &PushTokenHandler{pushTokenService: pushTokenService}
}

// Register godoc
// POST /api/push-tokens
// Body: { "pushToken": "...", "deviceOS": "iOS", "bundleId": "com.app", "previousToken": "..." }
func (h *PushTokenHandler) Register(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}

	var req models.RegisterPushTokenRequest
	if err := pkg.DecodeJSON(r, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	ep, err := h.pushTokenService.Register(r.Context(), claims.ParticipantID, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, ep)
}

// List godoc
// GET /api/push-tokens
func (h *PushTokenHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}

	endpoints, err := h.pushTokenService.List(r.Context(), claims.ParticipantID)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, endpoints)
}

// Remove godoc
// DELETE /api/push-tokens/{token}
func (h *PushTokenHandler) Remove(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}

	if err := h.pushTokenService.Remove(r.Context(), claims.ParticipantID, r.PathValue("token")); err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"message": "push token removed"})
}
