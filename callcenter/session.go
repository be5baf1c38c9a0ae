// Package callcenter, cihaz tarafındaki çağrı oturumu yönetimi.
//
// Her çağrı denemesi için bir Coordinator çalışır. Coordinator tek bir
// goroutine'de koşan bir actor'dür: kullanıcı intent'leri, push veya realtime
// kanaldan gelen signaling event'leri, timer'lar ve telephony callback'leri
// aynı inbox'a mesaj olarak düşer ve sırayla işlenir. Oturum state'ine
// sadece bu goroutine dokunur.
//
// Registry, katılımcı başına en fazla bir canlı Coordinator tutar
// (çağrı bekletme yok).
package callcenter

import (
	"errors"
	"time"

	"github.com/akinalp/callrelay/models"
)

var (
	// ErrBusy, katılımcının zaten canlı bir oturumu varken yeni çağrı başlatılırsa döner.
	ErrBusy = errors.New("participant already has a live call")
	// ErrNoSession, canlı oturum yokken intent gelirse döner.
	ErrNoSession = errors.New("no live call session")
	// ErrInvalidState, intent mevcut state'te uygulanamıyorsa döner (ör. Dialing'de Answer).
	ErrInvalidState = errors.New("intent not valid in current state")
)

// State, oturumun yaşam döngüsü aşaması.
type State string

const (
	StateIdle       State = "Idle"
	StateDialing    State = "Dialing"
	StateRinging    State = "Ringing"
	StateConnecting State = "Connecting"
	StateActive     State = "Active"
	StateEnded      State = "Ended"
)

// Live, Idle ve Ended dışındaki state'ler.
func (s State) Live() bool {
	return s != StateIdle && s != StateEnded
}

// Role, yerel katılımcının bu çağrıdaki tarafı.
type Role string

const (
	RoleCaller Role = "Caller"
	RoleCallee Role = "Callee"
)

// Yerel bitiş sebepleri. Bunlar relay'e gönderilmez, sadece Session.EndReason'da görünür.
const (
	ReasonAnsweredElsewhere models.EndReason = "ANSWERED_ELSEWHERE"
	ReasonRemoteEnded       models.EndReason = "REMOTE_ENDED"
	ReasonShutdown          models.EndReason = "SHUTDOWN"
)

// Session, bir çağrı denemesinin yerel görünümü.
// CallID atandıktan sonra değişmez ve tüm inbound event'lerin dedup anahtarıdır.
type Session struct {
	CallID         string           `json:"callId"`
	CallerID       string           `json:"callerId"`
	CalleeID       string           `json:"calleeId"`
	CallerName     string           `json:"callerName,omitempty"`
	Channel        string           `json:"channel"`
	BundleID       string           `json:"bundleId"`
	Role           Role             `json:"role"`
	State          State            `json:"state"`
	StartedAt      time.Time        `json:"startedAt"`
	AnswerDeadline time.Time        `json:"answerDeadline"`
	EndedAt        time.Time        `json:"endedAt,omitzero"`
	EndReason      models.EndReason `json:"endReason,omitempty"`

	// Invited, Incoming'in (en az bir kopyası) realtime davet olarak geldiyse true.
	// Cevap bu durumda davet kanalından da iletilir.
	Invited bool `json:"invited,omitempty"`
}

// Peer, karşı tarafın participant id'si.
func (s Session) Peer() string {
	if s.Role == RoleCaller {
		return s.CalleeID
	}
	return s.CallerID
}
