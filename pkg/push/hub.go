package push

import (
	"context"

	"github.com/akinalp/callrelay/models"
)

// SignalPublisher, realtime hub'ın push için kullanılan yüzü.
// SendSignal kullanıcının en az bir açık bağlantısına yazabildiyse true döner.
type SignalPublisher interface {
	SendSignal(userID string, payload Payload) bool
}

// HubSender, Web endpoint'lerine event'i websocket "signal" mesajı olarak iletir.
// Sahibi çevrimdışıysa "Offline" ile reddedilir; tarayıcı için kalıcı kuyruk yoktur.
type HubSender struct {
	hub SignalPublisher
}

func NewHubSender(hub SignalPublisher) *HubSender {
	return &HubSender{hub: hub}
}

func (s *HubSender) Send(_ context.Context, endpoint models.PushEndpoint, event models.SignalingEvent) Result {
	if !s.hub.SendSignal(endpoint.OwnerID, NewPayload(event)) {
		return rejected(ReasonOffline)
	}
	return accepted("")
}
