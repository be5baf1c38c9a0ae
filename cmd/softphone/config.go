package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config, softphone ayarları. Her flag'in varsayılanı SOFTPHONE_* env
// değişkeninden (.env dahil) okunur.
type Config struct {
	RelayURL    string
	DisplayName string
	CredsPath   string

	PushToken string
	DeviceOS  string
	BundleID  string

	Callee      string
	Channel     string
	HangUpAfter time.Duration

	AutoAnswer  bool
	AnswerDelay time.Duration
	RingTimeout time.Duration
	NotifyBusy  bool
	Realtime    bool
}

func loadConfig(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("softphone", flag.ContinueOnError)
	cfg := &Config{}

	fs.StringVar(&cfg.RelayURL, "relay", getEnv("SOFTPHONE_RELAY_URL", "http://localhost:9090"), "relay base URL")
	fs.StringVar(&cfg.DisplayName, "name", getEnv("SOFTPHONE_NAME", "softphone"), "display name shown to callees")
	fs.StringVar(&cfg.CredsPath, "creds", getEnv("SOFTPHONE_CREDS", "softphone-creds.json"), "file holding participant id and secret")
	fs.StringVar(&cfg.PushToken, "push-token", getEnv("SOFTPHONE_PUSH_TOKEN", ""), "push token to register (default: a Web endpoint served over the realtime channel)")
	fs.StringVar(&cfg.DeviceOS, "device-os", getEnv("SOFTPHONE_DEVICE_OS", "Web"), "deviceOS of the registered push token")
	fs.StringVar(&cfg.BundleID, "bundle", getEnv("SOFTPHONE_BUNDLE_ID", "com.callrelay.softphone"), "bundle id sent with call requests")
	fs.StringVar(&cfg.Callee, "call", "", "participant id to call after startup")
	fs.StringVar(&cfg.Channel, "channel", "", "media channel for the outgoing call (default: random)")
	fs.DurationVar(&cfg.HangUpAfter, "hangup-after", 0, "hang up an active call after this long (0 keeps it open)")
	fs.BoolVar(&cfg.AutoAnswer, "auto-answer", getEnvBool("SOFTPHONE_AUTO_ANSWER", false), "answer incoming calls automatically")
	fs.DurationVar(&cfg.AnswerDelay, "answer-delay", time.Second, "delay before auto-answering")
	fs.DurationVar(&cfg.RingTimeout, "ring-timeout", 60*time.Second, "how long an unanswered call rings")
	fs.BoolVar(&cfg.NotifyBusy, "notify-busy", true, "reject calls arriving during a live call with BUSY")
	fs.BoolVar(&cfg.Realtime, "realtime", true, "use the realtime channel for presence and invitations")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.RelayURL == "" {
		return nil, errors.New("relay URL is required")
	}
	if _, err := wsURL(cfg.RelayURL); err != nil {
		return nil, err
	}
	if cfg.RingTimeout <= 0 {
		return nil, fmt.Errorf("ring-timeout must be positive, got %s", cfg.RingTimeout)
	}
	return cfg, nil
}

// wsURL, relay base URL'inden hub adresini türetir.
func wsURL(relayURL string) (string, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return "", fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("relay URL must be http or https, got %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return v
}
