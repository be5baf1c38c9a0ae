package models

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// Participant, anonim olarak kaydolmuş bir cihaz kimliği.
// SecretHash API'ye asla çıkmaz.
type Participant struct {
	ID          string    `json:"participantId"`
	DisplayName string    `json:"displayName"`
	SecretHash  string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AnonymousSignUpRequest, POST /api/auth/anonymous body'si.
type AnonymousSignUpRequest struct {
	DisplayName string `json:"displayName"`
}

// Validate, display name'i kırpar ve uzunluğunu kontrol eder.
func (r *AnonymousSignUpRequest) Validate() error {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if utf8.RuneCountInString(r.DisplayName) > 64 {
		return errors.New("displayName must be at most 64 characters")
	}
	return nil
}

// TokenRequest, POST /api/auth/token body'si: kayıtlı cihaz yeni access token ister.
type TokenRequest struct {
	ParticipantID string `json:"participantId"`
	Secret        string `json:"secret"`
}

func (r *TokenRequest) Validate() error {
	if r.ParticipantID == "" || r.Secret == "" {
		return errors.New("participantId and secret are required")
	}
	return nil
}

// Credentials, kayıt sonrası cihaza bir kez dönen kimlik bilgileri.
// Secret sadece ilk kayıtta dolu gelir.
type Credentials struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Secret        string `json:"secret,omitempty"`
	AccessToken   string `json:"accessToken"`
	ExpiresIn     int    `json:"expiresIn"` // saniye
}
