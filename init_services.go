// Service katmanı başlatma.
//
// initServices, service implementasyonlarını oluşturur. Her service ihtiyaç
// duyduğu repository interface'lerini ve diğer dependency'leri constructor
// injection ile alır.
//
// Sıralama kuralları:
// 1. push sender → hub'dan SONRA (Web endpoint'leri hub üzerinden gider)
// 2. invitationService → Hub callback'lerinden ÖNCE (closure scoping)
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/akinalp/callrelay/config"
	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg/metrics"
	"github.com/akinalp/callrelay/pkg/push"
	"github.com/akinalp/callrelay/pkg/ratelimit"
	"github.com/akinalp/callrelay/services"
	"github.com/akinalp/callrelay/ws"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Auth       services.AuthService
	PushToken  services.PushTokenService
	Signaling  services.SignalingService
	Media      services.MediaService
	Invitation services.InvitationService
	Pruner     services.PushLogPruner
}

// RateLimiters, tüm rate limiter instance'larını tutan container.
type RateLimiters struct {
	Auth *ratelimit.Limiter // IP bazlı, anonim endpoint'ler
	Call *ratelimit.Limiter // participant bazlı, call RPC'leri
}

// Close, service'lerin arka plan goroutine'lerini durdurur.
func (s *Services) Close() {
	s.Pruner.Stop()
	s.Invitation.Close()
	s.Signaling.Close()
}

// Close, limiter cleanup goroutine'lerini durdurur.
func (l *RateLimiters) Close() {
	l.Auth.Close()
	l.Call.Close()
}

// initServices, tüm service'leri ve rate limiter'ları oluşturur.
func initServices(repos *Repositories, hub *ws.Hub, m *metrics.Metrics, cfg *config.Config) (*Services, *RateLimiters, error) {
	sender, err := initPushSender(cfg, hub)
	if err != nil {
		return nil, nil, err
	}

	authService := services.NewAuthService(repos.Participant, cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)
	pushTokenService := services.NewPushTokenService(repos.PushToken)
	signalingService := services.NewSignalingService(
		repos.PushToken, repos.PushLog, sender, m,
		services.SignalingConfig{
			DispatchTimeout: cfg.Call.DispatchTimeout,
			DedupWindow:     cfg.Call.DedupWindow,
		},
	)
	mediaService := services.NewMediaService(cfg.LiveKit)

	// Cevapsız davet, cihazdaki çalma süresiyle aynı anda düşer.
	invitationService := services.NewInvitationService(hub, m, cfg.Call.RingTimeout)

	pruner := services.NewPushLogPruner(repos.PushLog, time.Hour, cfg.Call.PushLogRetention)

	svcs := &Services{
		Auth:       authService,
		PushToken:  pushTokenService,
		Signaling:  signalingService,
		Media:      mediaService,
		Invitation: invitationService,
		Pruner:     pruner,
	}

	limiters := &RateLimiters{
		Auth: ratelimit.New(10, time.Minute, 2*time.Minute),
		Call: ratelimit.New(cfg.Call.RequestsPerMin, time.Minute, 0),
	}

	return svcs, limiters, nil
}

// initPushSender, platform → sender router'ını kurar.
// Kimlik bilgisi eksik olan sağlayıcı Disabled ile bağlanır; o platformun
// endpoint'leri dispatch sonucunda "rejected" görünür.
func initPushSender(cfg *config.Config, hub *ws.Hub) (push.Sender, error) {
	router := push.NewRouter()

	if cfg.APNs.Enabled() {
		key, err := push.LoadAPNsKey(cfg.APNs.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load APNs key: %w", err)
		}
		router.Handle(models.PlatformIOS, push.NewAPNsSender(push.APNsConfig{
			Host:    cfg.APNs.BaseURL(),
			KeyID:   cfg.APNs.KeyID,
			TeamID:  cfg.APNs.TeamID,
			Key:     key,
		}))
		log.Printf("[main] APNs enabled (%s)", cfg.APNs.BaseURL())
	} else {
		router.Handle(models.PlatformIOS, push.Disabled())
		log.Println("[main] APNs disabled (APNS_KEY_PATH, APNS_KEY_ID or APNS_TEAM_ID not set)")
	}

	if cfg.FCM.CredentialsFile != "" {
		client, err := push.NewFCMClient(context.Background(), cfg.FCM.CredentialsFile, cfg.FCM.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to init FCM: %w", err)
		}
		router.Handle(models.PlatformAndroid, push.NewFCMSender(client, cfg.FCM.TTL))
		log.Println("[main] FCM enabled")
	} else {
		router.Handle(models.PlatformAndroid, push.Disabled())
		log.Println("[main] FCM disabled (FCM_CREDENTIALS_FILE not set)")
	}

	router.Handle(models.PlatformWeb, push.NewHubSender(hub))

	return router, nil
}
