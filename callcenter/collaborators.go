package callcenter

import (
	"context"

	"github.com/akinalp/callrelay/models"
)

// Relay, signaling relay'e giden RPC'ler. relayclient.Client bunu karşılar.
type Relay interface {
	CallRequest(ctx context.Context, req *models.CallRequest) (*models.DispatchSummary, error)
	CallAccepted(ctx context.Context, req *models.CallAcceptedRequest) (*models.DispatchSummary, error)
	EndCall(ctx context.Context, req *models.EndCallRequest) (*models.DispatchSummary, error)
}

// Progress, giden çağrının native UI'a bildirilen ilerlemesi.
type Progress string

const (
	ProgressConnecting Progress = "connecting"
	ProgressConnected  Progress = "connected"
)

// TelephonyListener, native çağrı arayüzünden gelen kullanıcı aksiyonları.
// OnEnd, işletim sisteminin kendisinin kapattığı çağrılar için de gelir.
type TelephonyListener interface {
	OnAnswer(callID string)
	OnDecline(callID string)
	OnEnd(callID string)
}

// TelephonyAdapter, işletim sisteminin native çağrı arayüzü.
// Hata dönen PresentIncomingCall / ReportOutgoingProgress oturumu Failed ile bitirir.
type TelephonyAdapter interface {
	SetListener(l TelephonyListener)
	PresentIncomingCall(ctx context.Context, callID, fromHandle string) error
	ReportOutgoingProgress(ctx context.Context, callID string, p Progress) error
	EndCall(ctx context.Context, callID string) error
}

// Presence, QueryOnline sonucu.
type Presence string

const (
	PresenceOnline      Presence = "online"
	PresenceOffline     Presence = "offline"
	PresenceUnreachable Presence = "unreachable"
)

// InvitationOutcome, realtime davetin sonucu.
type InvitationOutcome string

const (
	InvitationAccepted InvitationOutcome = "accepted"
	InvitationRefused  InvitationOutcome = "refused"
	// InvitationFailed; karşı taraf offline, bağlantı koptu veya davet zaman aşımına
	// uğradı. Push yolu devam ettiği için oturumu etkilemez.
	InvitationFailed InvitationOutcome = "failed"
)

// Invitation, realtime kanaldan gelen ya da giden davet.
// Canceled true ise davet eden taraf daveti geri çekmiştir.
type Invitation struct {
	CallID     string
	FromID     string
	ToID       string
	CallerName string
	Channel    string
	BundleID   string
	Canceled   bool
}

// Event, daveti coordinator'ın yorumladığı signaling event'ine çevirir.
// İptal edilmiş davet Ended, diğerleri Incoming olur.
func (inv Invitation) Event() models.SignalingEvent {
	ev := models.SignalingEvent{
		Kind:       models.KindIncoming,
		CallID:     inv.CallID,
		CallerID:   inv.FromID,
		CalleeID:   inv.ToID,
		CallerName: inv.CallerName,
		Channel:    inv.Channel,
		BundleID:   inv.BundleID,
	}
	if inv.Canceled {
		ev.Kind = models.KindEnded
		ev.Reason = models.ReasonCancelled
	}
	return ev
}

// PresenceChannel, opsiyonel realtime presence ve davet kanalı.
// presence.Client bunu ws hub üzerinden karşılar.
type PresenceChannel interface {
	QueryOnline(ctx context.Context, peerID string) (Presence, error)
	// SendInvitation, davet cevaplanana, reddedilene veya ctx bitene kadar bekler.
	SendInvitation(ctx context.Context, peerID string, inv Invitation) (InvitationOutcome, error)
	CancelInvitation(ctx context.Context, callID string) error
	AcceptInvitation(ctx context.Context, callID string) error
	// RefuseInvitation, reason NotAnswered ise daveti zaman aşımı olarak reddeder.
	RefuseInvitation(ctx context.Context, callID string, reason models.EndReason) error
	Incoming() <-chan Invitation
}

// MediaEngine, kabul edilmiş çağrının ses/görüntü taşıyıcısı.
// Join aynı kanal için tekrar çağrılabilir; Leave idempotent olmalıdır.
type MediaEngine interface {
	Join(ctx context.Context, channel string) error
	Leave(ctx context.Context, channel string) error
}
