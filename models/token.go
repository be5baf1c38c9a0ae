package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, anonim katılımcının access token payload'ı.
// Subject ile ParticipantID aynı değeri taşır; middleware ve ws handler
// ParticipantID'yi okur.
type TokenClaims struct {
	ParticipantID string `json:"pid"`
	DisplayName   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
