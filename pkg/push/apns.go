package push

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"

	"github.com/akinalp/callrelay/models"
)

// APNsConfig, APNsSender ayarları.
type APNsConfig struct {
	Host       string // apns2.HostProduction veya apns2.HostDevelopment
	KeyID      string
	TeamID     string
	Key        *ecdsa.PrivateKey
	Expiration time.Duration // apns-expiration; 0 ise "hemen teslim et ya da at"
	HTTPClient *http.Client  // nil ise apns2'nin HTTP/2 client'ı
}

// APNsSender, iOS endpoint'lerine VoIP push gönderir.
// Topic her zaman "<bundleId>.voip" olur; bundle id endpoint'ten, yoksa
// event'ten alınır. Provider token'ı apns2 imzalar ve süresi dolana kadar
// tekrar kullanır.
type APNsSender struct {
	cfg    APNsConfig
	token  *token.Token
	client *apns2.Client
	now    func() time.Time
}

func NewAPNsSender(cfg APNsConfig) *APNsSender {
	tok := &token.Token{AuthKey: cfg.Key, KeyID: cfg.KeyID, TeamID: cfg.TeamID}
	client := apns2.NewTokenClient(tok)
	if cfg.Host != "" {
		client.Host = cfg.Host
	}
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	}
	return &APNsSender{cfg: cfg, token: tok, client: client, now: time.Now}
}

// LoadAPNsKey, Apple'dan indirilen .p8 (PKCS#8 PEM) anahtarını okur.
func LoadAPNsKey(path string) (*ecdsa.PrivateKey, error) {
	key, err := token.AuthKeyFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load apns key: %w", err)
	}
	return key, nil
}

type apnsAPS struct {
	ContentAvailable int `json:"content-available"`
}

type apnsBody struct {
	APS apnsAPS `json:"aps"`
	Payload
}

func (s *APNsSender) Send(ctx context.Context, endpoint models.PushEndpoint, event models.SignalingEvent) Result {
	bundleID := endpoint.BundleID
	if bundleID == "" {
		bundleID = event.BundleID
	}
	if bundleID == "" {
		return rejected("MissingTopic")
	}
	if s.cfg.Key == nil {
		return rejected(ReasonSenderDisabled)
	}

	n := &apns2.Notification{
		DeviceToken: endpoint.Token,
		Topic:       bundleID + ".voip",
		PushType:    apns2.PushTypeVOIP,
		Priority:    apns2.PriorityHigh,
		Expiration:  s.expiration(),
		CollapseID:  event.CallID,
		Payload:     apnsBody{APS: apnsAPS{ContentAvailable: 1}, Payload: NewPayload(event)},
	}

	resp, err := s.client.PushWithContext(ctx, n)
	if err != nil {
		log.Printf("[push] apns request failed: %v", err)
		return rejected(ReasonTransport)
	}
	if resp.Sent() {
		return accepted(resp.ApnsID)
	}

	reason := resp.Reason
	if reason == "" {
		reason = "HTTP" + strconv.Itoa(resp.StatusCode)
	}
	if reason == apns2.ReasonExpiredProviderToken {
		s.invalidateToken()
	}
	return rejected(reason)
}

// expiration, apns-expiration değeri. Unix 0, APNs'e push'ı saklamamasını söyler.
func (s *APNsSender) expiration() time.Time {
	if s.cfg.Expiration <= 0 {
		return time.Unix(0, 0)
	}
	return s.now().Add(s.cfg.Expiration)
}

// invalidateToken, bir sonraki isteğin provider token'ı yeniden imzalamasını sağlar.
func (s *APNsSender) invalidateToken() {
	s.token.Lock()
	s.token.IssuedAt = 0
	s.token.Unlock()
}
