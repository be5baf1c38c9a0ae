// Package middleware, HTTP request pipeline'ına eklenen ara katmanlar.
//
// Middleware bir func(next http.Handler) http.Handler'dır; işini yapar,
// sorun yoksa next'i çağırır. Hata durumunda zincir burada durur.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/akinalp/callrelay/handlers"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/ws"
)

// AuthMiddleware, Bearer access token doğrulaması.
// ws.TokenValidator'ı kabul eder; services.AuthService bunu karşılar.
type AuthMiddleware struct {
	validator ws.TokenValidator
}

func NewAuthMiddleware(validator ws.TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Require, geçerli token zorunlu kılar. Claims context'e
// handlers.UserContextKey ile konur.
//
// Katılımcılar anonim olduğu için DB lookup yapılmaz; imzalı token
// participant id'nin tek kaynağıdır.
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}

		claims, err := m.validator.ValidateAccessToken(tokenString)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
