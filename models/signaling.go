package models

import (
	"errors"
	"fmt"
	"time"
)

// EventKind, signaling event'inin türü. Wire değerleri mobil istemcilerin
// callState alanında beklediği büyük harfli isimlerdir.
type EventKind string

const (
	KindIncoming    EventKind = "INCOMING"
	KindAccepted    EventKind = "ACCEPTED"
	KindDeclined    EventKind = "DECLINED"
	KindNotAnswered EventKind = "NOT_ANSWERED"
	KindEnded       EventKind = "ENDED"
)

// Valid, bilinen bir kind mı.
func (k EventKind) Valid() bool {
	switch k {
	case KindIncoming, KindAccepted, KindDeclined, KindNotAnswered, KindEnded:
		return true
	}
	return false
}

// Terminal, bu kind karşı tarafta oturumu bitirir mi.
func (k EventKind) Terminal() bool {
	return k == KindDeclined || k == KindNotAnswered || k == KindEnded
}

// EndReason, endCallRequest'in opsiyonel sebep alanı.
type EndReason string

const (
	ReasonHangUp      EndReason = "HANG_UP"
	ReasonDeclined    EndReason = "DECLINED"
	ReasonNotAnswered EndReason = "NOT_ANSWERED"
	ReasonCancelled   EndReason = "CANCELLED"
	ReasonBusy        EndReason = "BUSY"
	ReasonFailed      EndReason = "FAILED"
)

// SignalingEvent, push veya realtime kanal ile cihaza ulaşan payload.
// CallID dedup anahtarıdır; CallID'siz event cihaz tarafında yok sayılır.
type SignalingEvent struct {
	Kind       EventKind `json:"kind"`
	CallID     string    `json:"callId"`
	CallerID   string    `json:"callerId"`
	CalleeID   string    `json:"calleeId"`
	CallerName string    `json:"callerName,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	BundleID   string    `json:"bundleId,omitempty"`
	Reason     EndReason `json:"reason,omitempty"`
}

// Valid, coordinator'ın yorumlayabileceği asgari alanlar dolu mu.
func (e SignalingEvent) Valid() bool {
	return e.Kind.Valid() && e.CallID != "" && e.CallerID != "" && e.CalleeID != ""
}

// ─── RPC request'leri ───

// CallRequest, callRequest RPC body'si: arayan cihaz aranan katılımcıyı uyandırır.
type CallRequest struct {
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId"`
	CalleeID   string `json:"calleeId"`
	CallerName string `json:"callerName"`
	Channel    string `json:"channel"`
	BundleID   string `json:"bundleId"`
}

func (r *CallRequest) Validate() error {
	if err := requireFields(map[string]string{
		"callId": r.CallID, "callerId": r.CallerID, "calleeId": r.CalleeID,
		"callerName": r.CallerName, "channel": r.Channel, "bundleId": r.BundleID,
	}); err != nil {
		return err
	}
	if r.CallerID == r.CalleeID {
		return errors.New("cannot call yourself")
	}
	return nil
}

// Event, callee cihazlarına gidecek Incoming payload'ı.
func (r *CallRequest) Event() SignalingEvent {
	return SignalingEvent{
		Kind:       KindIncoming,
		CallID:     r.CallID,
		CallerID:   r.CallerID,
		CalleeID:   r.CalleeID,
		CallerName: r.CallerName,
		Channel:    r.Channel,
		BundleID:   r.BundleID,
	}
}

// CallAcceptedRequest, callAccepted RPC body'si: callee cevap verdi.
type CallAcceptedRequest struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
	CalleeID string `json:"calleeId"`
	Channel  string `json:"channel"`
	BundleID string `json:"bundleId"`
}

func (r *CallAcceptedRequest) Validate() error {
	if err := requireFields(map[string]string{
		"callId": r.CallID, "callerId": r.CallerID, "calleeId": r.CalleeID,
		"channel": r.Channel, "bundleId": r.BundleID,
	}); err != nil {
		return err
	}
	if r.CallerID == r.CalleeID {
		return errors.New("callerId and calleeId must differ")
	}
	return nil
}

func (r *CallAcceptedRequest) Event() SignalingEvent {
	return SignalingEvent{
		Kind:     KindAccepted,
		CallID:   r.CallID,
		CallerID: r.CallerID,
		CalleeID: r.CalleeID,
		Channel:  r.Channel,
		BundleID: r.BundleID,
	}
}

// EndCallRequest, endCallRequest RPC body'si. Her iki tarafa da Ended gider.
// CallID eski istemcilerde yoktu, bu yüzden opsiyoneldir; gönderilmezse
// cihazlar event'i hiçbir oturumla eşleştiremez ve yok sayar.
type EndCallRequest struct {
	CallID   string    `json:"callId,omitempty"`
	CallerID string    `json:"callerId"`
	CalleeID string    `json:"calleeId"`
	BundleID string    `json:"bundleId"`
	Reason   EndReason `json:"reason,omitempty"`
}

func (r *EndCallRequest) Validate() error {
	if err := requireFields(map[string]string{
		"callerId": r.CallerID, "calleeId": r.CalleeID, "bundleId": r.BundleID,
	}); err != nil {
		return err
	}
	switch r.Reason {
	case "", ReasonHangUp, ReasonDeclined, ReasonNotAnswered, ReasonCancelled, ReasonBusy, ReasonFailed:
		return nil
	}
	return fmt.Errorf("unknown reason %q", r.Reason)
}

func (r *EndCallRequest) Event() SignalingEvent {
	return SignalingEvent{
		Kind:     KindEnded,
		CallID:   r.CallID,
		CallerID: r.CallerID,
		CalleeID: r.CalleeID,
		BundleID: r.BundleID,
		Reason:   r.Reason,
	}
}

// requireFields, boş alanları deterministik sırada raporlar.
func requireFields(fields map[string]string) error {
	var missing []string
	for _, name := range fieldOrder {
		if v, ok := fields[name]; ok && v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required field(s): %v", missing)
	}
	return nil
}

var fieldOrder = []string{"callId", "callerId", "calleeId", "callerName", "channel", "bundleId"}

// ─── Relay yanıtları ───

// DispatchSummary, RPC'nin döndüğü onay: kaç endpoint'e dispatch denendi.
// Accepted/Rejected uçtan uca teslimat değil, sağlayıcının kabulüdür.
type DispatchSummary struct {
	CallID    string    `json:"callId,omitempty"`
	Kind      EventKind `json:"kind"`
	Targets   int       `json:"targets"`
	Accepted  int       `json:"accepted"`
	Rejected  int       `json:"rejected"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// PushLogEntry, push_log tablosundaki tek bir dispatch denemesi.
type PushLogEntry struct {
	ID        string    `json:"id"`
	CallID    string    `json:"callId"`
	CallerID  string    `json:"callerId"`
	CalleeID  string    `json:"calleeId"`
	OwnerID   string    `json:"ownerId"`
	Token     string    `json:"-"`
	Platform  Platform  `json:"deviceOS"`
	Kind      EventKind `json:"kind"`
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
