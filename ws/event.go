// Package ws, realtime websocket kanalı: presence sorgusu, push'a paralel
// çalışan davet (invitation) el sıkışması ve Web endpoint'leri için signal teslimi.
//
// Hub bağlantıları katılımcı bazında tutar; bir katılımcının birden fazla
// cihazı aynı anda bağlı olabilir. Davet mantığı Hub'da değil, main'de
// bağlanan callback'ler üzerinden services katmanındadır.
package ws

// Event, websocket üzerindeki tek mesaj. Seq her outbound event'te artar.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// Client → Server
const (
	OpHeartbeat     = "heartbeat"
	OpPresenceQuery = "presence_query"
	OpInviteSend    = "invite_send"
	OpInviteAccept  = "invite_accept"
	OpInviteRefuse  = "invite_refuse"
	OpInviteCancel  = "invite_cancel"
)

// Server → Client
const (
	OpReady          = "ready"
	OpHeartbeatAck   = "heartbeat_ack"
	OpPresenceResult = "presence_result"
	OpInviteReceived = "invite_received"
	OpInviteAccepted = "invite_accepted"
	OpInviteRefused  = "invite_refused"
	OpInviteCanceled = "invite_canceled"
	OpSignal         = "signal"
)

// ReadyData, bağlantı kurulunca gönderilen ilk event.
type ReadyData struct {
	ParticipantID     string `json:"participantId"`
	HeartbeatInterval int    `json:"heartbeatInterval"` // saniye
}

// PresenceQueryData, presence_query payload'ı.
type PresenceQueryData struct {
	PeerID string `json:"peerId"`
}

// PresenceResultData, presence_result payload'ı.
type PresenceResultData struct {
	PeerID string `json:"peerId"`
	Online bool   `json:"online"`
}

// InvitationData, invite_* event'lerinin ortak payload'ı.
// CallID daveti tanımlar; push ile giden callRequest ile aynı değerdir.
type InvitationData struct {
	CallID     string `json:"callId"`
	FromID     string `json:"fromId,omitempty"`
	ToID       string `json:"toId,omitempty"`
	CallerName string `json:"callerName,omitempty"`
	Channel    string `json:"channel,omitempty"`
	BundleID   string `json:"bundleId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Davet red/iptal sebepleri.
const (
	InviteReasonOffline    = "offline"
	InviteReasonRefused    = "refused"
	InviteReasonCanceled   = "canceled"
	InviteReasonTimeout    = "timeout"
	InviteReasonDisconnect = "disconnect"
)
