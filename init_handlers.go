// Handler katmanı başlatma.
//
// initHandlers, HTTP handler'larını oluşturur. Handler'lar "thin" dir:
// HTTP parse + service call + response write.
package main

import (
	"github.com/akinalp/callrelay/handlers"
	"github.com/akinalp/callrelay/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Auth      *handlers.AuthHandler
	PushToken *handlers.PushTokenHandler
	Call      *handlers.CallHandler
	Media     *handlers.MediaHandler
	WS        *ws.Handler
}

// initHandlers, handler'ları service ve rate limiter dependency'leri ile oluşturur.
func initHandlers(svcs *Services, limiters *RateLimiters, hub *ws.Hub) *Handlers {
	return &Handlers{
		Auth:      handlers.NewAuthHandler(svcs.Auth, limiters.Auth),
		PushToken: handlers.NewPushTokenHandler(svcs.PushToken),
		Call:      handlers.NewCallHandler(svcs.Signaling, limiters.Call),
		Media:     handlers.NewMediaHandler(svcs.Media),
		WS:        ws.NewHandler(hub, svcs.Auth),
	}
}
