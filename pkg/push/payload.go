package push

import (
	"github.com/akinalp/callrelay/models"
)

// Payload, tüm platformlarda ortak olan data alanları. callState alanı eski
// mobil istemcilerin okuduğu isimdir ve kind ile aynı değeri taşır.
type Payload struct {
	Kind       models.EventKind `json:"kind"`
	CallState  models.EventKind `json:"callState"`
	CallID     string           `json:"callId"`
	CallerID   string           `json:"callerId"`
	CalleeID   string           `json:"calleeId"`
	CallerName string           `json:"callerName,omitempty"`
	Channel    string           `json:"channel,omitempty"`
	BundleID   string           `json:"bundleId,omitempty"`
	Reason     models.EndReason `json:"reason,omitempty"`
}

func NewPayload(e models.SignalingEvent) Payload {
	return Payload{
		Kind:       e.Kind,
		CallState:  e.Kind,
		CallID:     e.CallID,
		CallerID:   e.CallerID,
		CalleeID:   e.CalleeID,
		CallerName: e.CallerName,
		Channel:    e.Channel,
		BundleID:   e.BundleID,
		Reason:     e.Reason,
	}
}

// Event, payload'ı cihaz tarafındaki SignalingEvent'e geri çevirir.
func (p Payload) Event() models.SignalingEvent {
	kind := p.Kind
	if kind == "" {
		kind = p.CallState
	}
	return models.SignalingEvent{
		Kind:       kind,
		CallID:     p.CallID,
		CallerID:   p.CallerID,
		CalleeID:   p.CalleeID,
		CallerName: p.CallerName,
		Channel:    p.Channel,
		BundleID:   p.BundleID,
		Reason:     p.Reason,
	}
}

// Data, FCM data map'i. FCM data değerleri string olmak zorunda.
func (p Payload) Data() map[string]string {
	data := map[string]string{
		"kind":      string(p.Kind),
		"callState": string(p.CallState),
		"callId":    p.CallID,
		"callerId":  p.CallerID,
		"calleeId":  p.CalleeID,
	}
	for k, v := range map[string]string{
		"callerName": p.CallerName,
		"channel":    p.Channel,
		"bundleId":   p.BundleID,
		"reason":     string(p.Reason),
	} {
		if v != "" {
			data[k] = v
		}
	}
	return data
}

// EventFromData, FCM data map'inden SignalingEvent üretir.
func EventFromData(data map[string]string) models.SignalingEvent {
	p := Payload{
		Kind:       models.EventKind(data["kind"]),
		CallState:  models.EventKind(data["callState"]),
		CallID:     data["callId"],
		CallerID:   data["callerId"],
		CalleeID:   data["calleeId"],
		CallerName: data["callerName"],
		Channel:    data["channel"],
		BundleID:   data["bundleId"],
		Reason:     models.EndReason(data["reason"]),
	}
	return p.Event()
}
