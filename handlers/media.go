package handlers

import (
	"net/http"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/services"
)

// MediaHandler, kabul edilen çağrının medya odasına katılım token'ı.
type MediaHandler struct {
	mediaService services.MediaService
}

func NewMediaHandler(mediaService services.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// Token godoc
// POST /api/media/token
// Request:  { "channel": "room-7" }
// Response: { "token": "eyJ...", "url": "wss://...", "channel": "room-7" }
func (h *MediaHandler) Token(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}

	var req models.MediaTokenRequest
	if err := pkg.DecodeJSON(r, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	token, err := h.mediaService.JoinToken(claims.ParticipantID, claims.DisplayName, &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}
	pkg.JSON(w, http.StatusOK, token)
}
