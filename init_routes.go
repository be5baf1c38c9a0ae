// HTTP route registration.
//
// initRoutes, API endpoint'lerini mux'a bağlar. Anonim auth endpoint'leri
// hariç her şey Bearer access token ister.
package main

import (
	"net/http"

	"github.com/akinalp/callrelay/middleware"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/pkg/metrics"
	"github.com/akinalp/callrelay/ws"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
//
// Route sıralama kuralı: literal path'ler parametrik path'lerden önce tanımlanır.
func initRoutes(mux *http.ServeMux, h *Handlers, validator ws.TokenValidator, m *metrics.Metrics) {
	// ─── Middleware ───
	authMw := middleware.NewAuthMiddleware(validator)

	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(http.HandlerFunc(handler))
	}

	// Health check
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		pkg.JSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "callrelay"})
	})

	// Auth: anonim katılımcı kaydı ve token yenileme
	mux.HandleFunc("POST /api/auth/anonymous", h.Auth.SignUpAnonymous)
	mux.HandleFunc("POST /api/auth/token", h.Auth.IssueToken)
	mux.Handle("GET /api/auth/me", auth(h.Auth.Me))

	// Push token registry
	mux.Handle("POST /api/push-tokens", auth(h.PushToken.Register))
	mux.Handle("GET /api/push-tokens", auth(h.PushToken.List))
	mux.Handle("DELETE /api/push-tokens/{token}", auth(h.PushToken.Remove))

	// Signaling relay: REST route'ları ve RPC adıyla çağrılan eşdeğerleri
	mux.Handle("POST /api/calls/request", auth(h.Call.Request))
	mux.Handle("POST /api/calls/accepted", auth(h.Call.Accepted))
	mux.Handle("POST /api/calls/end", auth(h.Call.End))
	mux.Handle("GET /api/calls/{callId}/deliveries", auth(h.Call.Deliveries))
	mux.Handle("POST /api/rpc/{name}", auth(h.Call.RPC))

	// Media: LiveKit oda token'ı
	mux.Handle("POST /api/media/token", auth(h.Media.Token))

	// WebSocket: token query parametresi veya Authorization header ile doğrulanır,
	// handler kendi içinde kontrol eder.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)

	// Prometheus
	mux.Handle("GET /metrics", m.Handler())
}
