// Package push, signaling event'lerini kayıtlı cihaz endpoint'lerine ileten
// platform sender'ları.
//
// Her Send tek bir teslimat denemesidir; retry yoktur. Sonuç sadece
// sağlayıcının isteği kabul edip etmediğini söyler, cihaza ulaştığını değil.
package push

import (
	"context"

	"github.com/akinalp/callrelay/models"
)

// Rejection sebepleri. Sağlayıcının kendi döndürdüğü sebepler (BadDeviceToken,
// NotRegistered vb.) olduğu gibi Result.Reason'a yazılır.
const (
	ReasonUnsupportedPlatform = "UnsupportedPlatform"
	ReasonSenderDisabled      = "SenderDisabled"
	ReasonTransport           = "TransportError"
	ReasonOffline             = "Offline"
)

// Result, tek bir dispatch denemesinin sonucu.
type Result struct {
	Accepted bool
	Reason   string
	ID       string // apns-id veya FCM message_id
}

func accepted(id string) Result { return Result{Accepted: true, ID: id} }

func rejected(reason string) Result { return Result{Reason: reason} }

// Sender, tek platforma teslimat yapan adapter.
type Sender interface {
	Send(ctx context.Context, endpoint models.PushEndpoint, event models.SignalingEvent) Result
}

// SenderFunc, fonksiyonu Sender olarak kullanmak için adapter.
type SenderFunc func(ctx context.Context, endpoint models.PushEndpoint, event models.SignalingEvent) Result

func (f SenderFunc) Send(ctx context.Context, endpoint models.PushEndpoint, event models.SignalingEvent) Result {
	return f(ctx, endpoint, event)
}

// Router, endpoint'in platformuna göre sender seçer.
// Kayıtlı sender'ı olmayan platform "UnsupportedPlatform" ile reddedilir.
type Router struct {
	senders map[models.Platform]Sender
}

func NewRouter() *Router {
	return &Router{senders: make(map[models.Platform]Sender)}
}

// Handle, platform için sender kaydeder. nil sender kaydı siler.
func (r *Router) Handle(platform models.Platform, s Sender) *Router {
	if s == nil {
		delete(r.senders, platform)
		return r
	}
	r.senders[platform] = s
	return r
}

func (r *Router) Send(ctx context.Context, endpoint models.PushEndpoint, event models.SignalingEvent) Result {
	s, ok := r.senders[endpoint.Platform]
	if !ok {
		return rejected(ReasonUnsupportedPlatform)
	}
	return s.Send(ctx, endpoint, event)
}

// disabledSender, konfigürasyonu eksik platformlar için yer tutucu.
type disabledSender struct{}

// Disabled, her isteği "SenderDisabled" ile reddeden sender.
func Disabled() Sender { return disabledSender{} }

func (disabledSender) Send(context.Context, models.PushEndpoint, models.SignalingEvent) Result {
	return rejected(ReasonSenderDisabled)
}
