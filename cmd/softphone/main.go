// softphone, native çağrı arayüzü olmayan headless bir cihaz.
//
// Relay'e anonim katılımcı olarak kaydolur, push endpoint'ini bildirir,
// realtime kanala bağlanır ve çağrıları callcenter.Registry üzerinden yürütür.
// Uçtan uca signaling denemeleri ve yük testleri için kullanılır:
//
//	softphone -name Bob -auto-answer
//	softphone -name Ada -call <bob-participant-id> -hangup-after 10s
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/callrelay/callcenter"
	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/presence"
	"github.com/akinalp/callrelay/relayclient"
)

// storedCreds, ilk kayıttan sonra diske yazılan kimlik.
type storedCreds struct {
	ParticipantID string `json:"participantId"`
	Secret        string `json:"secret"`
	DisplayName   string `json:"displayName"`
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("[main] %v", err)
	}
	log.Println("[main] softphone stopped")
}

func run(ctx context.Context, cfg *Config) error {
	relay := relayclient.New(cfg.RelayURL, nil)

	self, err := authenticate(ctx, relay, cfg)
	if err != nil {
		return err
	}
	log.Printf("[main] signed in as %s (%s)", self, cfg.DisplayName)

	if err := registerEndpoint(ctx, relay, cfg, self); err != nil {
		return err
	}

	var pc *presence.Client
	if cfg.Realtime {
		hubURL, _ := wsURL(cfg.RelayURL)
		pc, err = presence.Dial(ctx, hubURL, relay.Token())
		if err != nil {
			return fmt.Errorf("connect realtime channel: %w", err)
		}
		defer pc.Close()
	}

	phone := callcenter.NewHeadlessTelephony(callcenter.HeadlessOptions{
		AutoAnswer:  cfg.AutoAnswer,
		AnswerDelay: cfg.AnswerDelay,
	})
	media := &tokenMedia{relay: relay, self: self}

	reg := callcenter.NewRegistry(func(string) (callcenter.Config, callcenter.Deps) {
		deps := callcenter.Deps{Relay: relay, Telephony: phone, Media: media}
		if pc != nil {
			deps.Presence = pc
		}
		return callcenter.Config{
			LocalName:     cfg.DisplayName,
			BundleID:      cfg.BundleID,
			RingTimeout:   cfg.RingTimeout,
			AnswerTimeout: cfg.RingTimeout,
			NotifyBusy:    cfg.NotifyBusy,
		}, deps
	}, 2*cfg.RingTimeout)
	defer reg.Close()

	if pc != nil {
		go pc.Forward(ctx, reg)
	}

	if cfg.Callee != "" {
		channel := cfg.Channel
		if channel == "" {
			channel = "call-" + uuid.NewString()
		}
		callID, err := reg.StartCall(ctx, self, cfg.Callee, channel)
		if err != nil {
			return fmt.Errorf("start call: %w", err)
		}
		log.Printf("[main] calling %s, call=%s channel=%s", cfg.Callee, callID, channel)
	}

	watch(ctx, reg, self, cfg.HangUpAfter, pcDone(pc))
	return nil
}

// authenticate, kayıtlı kimlikle token alır; kimlik yoksa ya da geçersizse
// yeniden kaydolur ve kimliği diske yazar.
func authenticate(ctx context.Context, relay *relayclient.Client, cfg *Config) (string, error) {
	if stored, err := readCreds(cfg.CredsPath); err == nil {
		creds, err := relay.IssueToken(ctx, stored.ParticipantID, stored.Secret)
		if err == nil {
			return creds.ParticipantID, nil
		}
		log.Printf("[main] stored credentials rejected, signing up again: %v", err)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read credentials: %w", err)
	}

	creds, err := relay.SignUpAnonymous(ctx, cfg.DisplayName)
	if err != nil {
		return "", fmt.Errorf("sign up: %w", err)
	}
	if err := writeCreds(cfg.CredsPath, storedCreds{
		ParticipantID: creds.ParticipantID,
		Secret:        creds.Secret,
		DisplayName:   creds.DisplayName,
	}); err != nil {
		return "", fmt.Errorf("save credentials: %w", err)
	}
	return creds.ParticipantID, nil
}

func registerEndpoint(ctx context.Context, relay *relayclient.Client, cfg *Config, self string) error {
	token := cfg.PushToken
	deviceOS := cfg.DeviceOS
	if token == "" {
		// Web endpoint'lerine teslimat realtime kanalın signal mesajlarıyla yapılır.
		token = "softphone-" + self
		deviceOS = string(models.PlatformWeb)
	}

	ep, err := relay.RegisterPushToken(ctx, &models.RegisterPushTokenRequest{
		PushToken: token,
		DeviceOS:  deviceOS,
		BundleID:  cfg.BundleID,
	})
	if err != nil {
		return fmt.Errorf("register push token: %w", err)
	}
	log.Printf("[main] registered %s endpoint", ep.Platform)
	return nil
}

// watch, oturum değişikliklerini loglar ve istenirse aktif çağrıyı kapatır.
func watch(ctx context.Context, reg *callcenter.Registry, self string, hangUpAfter time.Duration, disconnected <-chan struct{}) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var (
		last     callcenter.Session
		activeAt time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-disconnected:
			log.Println("[main] realtime channel closed")
			return
		case <-ticker.C:
		}

		s, _ := reg.Session(self)
		if s.CallID != last.CallID || s.State != last.State {
			switch {
			case s.CallID == "":
				if last.State.Live() {
					log.Printf("[main] call=%s finished", last.CallID)
				}
			default:
				log.Printf("[main] call=%s %s with %s", s.CallID, s.State, s.Peer())
			}
			if s.State == callcenter.StateActive {
				activeAt = time.Now()
			}
			last = s
		}

		if hangUpAfter > 0 && s.State == callcenter.StateActive && time.Since(activeAt) >= hangUpAfter {
			if err := reg.HangUp(self); err != nil {
				log.Printf("[main] hang up: %v", err)
			}
		}
	}
}

func pcDone(pc *presence.Client) <-chan struct{} {
	if pc == nil {
		return nil
	}
	return pc.Done()
}

func readCreds(path string) (*storedCreds, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c storedCreds
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if c.ParticipantID == "" || c.Secret == "" {
		return nil, fmt.Errorf("%s is missing participantId or secret", path)
	}
	return &c, nil
}

func writeCreds(path string, c storedCreds) error {
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
