// Package handlers, relay'in HTTP yüzü.
//
// Handler'lar incedir: body'yi parse eder, service'i çağırır, sonucu
// pkg.JSON / pkg.Error zarfıyla yazar. İş mantığı ve yetki kontrolü
// service katmanında yaşar.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/pkg/ratelimit"
	"github.com/akinalp/callrelay/services"
)

type contextKey string

// UserContextKey, AuthMiddleware'ın *models.TokenClaims koyduğu context key'i.
const UserContextKey contextKey = "claims"

// claimsFrom, context'teki doğrulanmış katılımcıyı okur.
func claimsFrom(r *http.Request) (*models.TokenClaims, bool) {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	return claims, ok && claims != nil
}

// AuthHandler, anonim kayıt ve token yenileme endpoint'leri.
type AuthHandler struct {
	authService services.AuthService
	limiter     *ratelimit.Limiter
}

// NewAuthHandler, constructor. limiter nil ise IP bazlı limit uygulanmaz.
func NewAuthHandler(authService services.AuthService, limiter *ratelimit.Limiter) *AuthHandler {
	return &AuthHandler{authService: authService, limiter: limiter}
}

// SignUpAnonymous godoc
// POST /api/auth/anonymous
// Body: { "displayName": "Ada" }
// Secret yanıtta bir kez döner, cihaz saklamakla yükümlüdür.
func (h *AuthHandler) SignUpAnonymous(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req models.AnonymousSignUpRequest
	if err := pkg.DecodeJSON(r, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	creds, err := h.authService.SignUpAnonymous(r.Context(), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, creds)
}

// IssueToken godoc
// POST /api/auth/token
// Body: { "participantId": "...", "secret": "..." }
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	if !h.allow(w, r) {
		return
	}

	var req models.TokenRequest
	if err := pkg.DecodeJSON(r, &req); err != nil {
		pkg.Error(w, err)
		return
	}

	creds, err := h.authService.IssueToken(r.Context(), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	// Başarılı doğrulama sayacı sıfırlar.
	if h.limiter != nil {
		h.limiter.Reset(ratelimit.ExtractIP(r))
	}
	pkg.JSON(w, http.StatusOK, creds)
}

// Me godoc
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "participant not found in context")
		return
	}

	pkg.JSON(w, http.StatusOK, map[string]string{
		"participantId": claims.ParticipantID,
		"displayName":   claims.DisplayName,
	})
}

func (h *AuthHandler) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	ip := ratelimit.ExtractIP(r)
	if h.limiter.Allow(ip) {
		return true
	}
	writeTooManyRequests(w, h.limiter.RetryAfterSeconds(ip), "too many attempts")
	return false
}

// writeTooManyRequests, 429 + Retry-After yazar.
func writeTooManyRequests(w http.ResponseWriter, retryAfter int, what string) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
		fmt.Sprintf("%s, please try again in %s", what, ratelimit.FormatRetryMessage(retryAfter)))
}
