package push

import (
	"context"
	"fmt"
	"log"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/akinalp/callrelay/models"
)

// FCM hata sebepleri. Sağlayıcının hata kodu Result.Reason'a bu isimlerle yazılır.
const (
	ReasonFCMUnregistered     = "Unregistered"
	ReasonFCMInvalidArgument  = "InvalidArgument"
	ReasonFCMSenderIDMismatch = "SenderIdMismatch"
	ReasonFCMQuotaExceeded    = "QuotaExceeded"
	ReasonFCMUnavailable      = "Unavailable"
	ReasonFCMAuthError        = "ThirdPartyAuthError"
	ReasonFCMInternal         = "Internal"
)

// MessageSender, FCM HTTP v1 gönderimi. *messaging.Client bunu karşılar.
type MessageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// NewFCMClient, service account JSON'u ile Firebase app açıp messaging client döner.
// projectID boşsa credentials dosyasındaki project_id kullanılır.
func NewFCMClient(ctx context.Context, credentialsFile, projectID string) (*messaging.Client, error) {
	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging: %w", err)
	}
	return client, nil
}

// FCMSender, Android endpoint'lerine yüksek öncelikli data push gönderir.
// Bildirim değil data mesajıdır; uygulama arka planda uyanıp kendi çağrı
// UI'ını gösterir.
type FCMSender struct {
	client MessageSender
	ttl    time.Duration
}

// NewFCMSender, constructor. ttl <= 0 ise 60 saniye.
func NewFCMSender(client MessageSender, ttl time.Duration) *FCMSender {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &FCMSender{client: client, ttl: ttl}
}

func (s *FCMSender) Send(ctx context.Context, endpoint models.PushEndpoint, event models.SignalingEvent) Result {
	ttl := s.ttl
	msg := &messaging.Message{
		Token: endpoint.Token,
		Data:  NewPayload(event).Data(),
		Android: &messaging.AndroidConfig{
			Priority:    "high",
			TTL:         &ttl,
			CollapseKey: event.CallID,
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		reason := fcmReason(err)
		if reason == ReasonTransport || reason == ReasonFCMInternal {
			log.Printf("[push] fcm send failed: %v", err)
		}
		return rejected(reason)
	}
	return accepted(id)
}

func fcmReason(err error) string {
	switch {
	case messaging.IsUnregistered(err):
		return ReasonFCMUnregistered
	case messaging.IsInvalidArgument(err):
		return ReasonFCMInvalidArgument
	case messaging.IsSenderIDMismatch(err):
		return ReasonFCMSenderIDMismatch
	case messaging.IsQuotaExceeded(err):
		return ReasonFCMQuotaExceeded
	case messaging.IsUnavailable(err):
		return ReasonFCMUnavailable
	case messaging.IsThirdPartyAuthError(err):
		return ReasonFCMAuthError
	case messaging.IsInternal(err):
		return ReasonFCMInternal
	}
	return ReasonTransport
}
