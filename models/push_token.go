package models

import (
	"errors"
	"strings"
	"time"
)

// Platform, push endpoint'inin teslimat kanalı. Değerler kayıtlı cihazların
// gönderdiği deviceOS alanıyla birebir aynıdır.
type Platform string

const (
	PlatformIOS     Platform = "iOS"     // APNs VoIP
	PlatformAndroid Platform = "Android" // FCM data push
	PlatformWeb     Platform = "Web"     // ws hub üzerinden signal event'i
)

// ParsePlatform, büyük/küçük harf duyarsız olarak Platform'a çevirir.
func ParsePlatform(raw string) (Platform, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ios":
		return PlatformIOS, true
	case "android":
		return PlatformAndroid, true
	case "web":
		return PlatformWeb, true
	}
	return "", false
}

// PushEndpoint, bir katılımcıya ait tek bir cihaz adresi.
//
// Kayıt token ile anahtarlanır (ID == Token), lookup OwnerID ile yapılır.
// Bir katılımcının birden fazla cihazı olabilir. Kayıtlar bu sistem
// tarafından hiç expire edilmez: bayat token teslimatta reddedilir, o kadar.
type PushEndpoint struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Token        string    `json:"pushToken"`
	Platform     Platform  `json:"deviceOS"`
	BundleID     string    `json:"bundleId,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// RegisterPushTokenRequest, POST /api/push-tokens body'si.
// PreviousToken doluysa cihaz token'ını yenilemiştir; eski kayıt aynı
// transaction içinde silinir.
type RegisterPushTokenRequest struct {
	PushToken     string `json:"pushToken"`
	DeviceOS      string `json:"deviceOS"`
	BundleID      string `json:"bundleId"`
	PreviousToken string `json:"previousToken,omitempty"`
}

func (r *RegisterPushTokenRequest) Validate() error {
	r.PushToken = strings.TrimSpace(r.PushToken)
	r.PreviousToken = strings.TrimSpace(r.PreviousToken)

	if r.PushToken == "" {
		return errors.New("pushToken is required")
	}
	if len(r.PushToken) > 4096 {
		return errors.New("pushToken is too long")
	}
	if _, ok := ParsePlatform(r.DeviceOS); !ok {
		return errors.New("deviceOS must be one of iOS, Android, Web")
	}
	if r.PreviousToken == r.PushToken {
		r.PreviousToken = ""
	}
	return nil
}
