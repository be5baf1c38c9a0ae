// Package services, relay'in iş mantığı katmanı.
//
// Service'ler http.Request bilmez; handler'dan domain modeli alır, repository
// interface'leri üzerinden veriye erişir. Hatalar pkg sentinel'leri ile
// sarılır, handler pkg.Error ile HTTP status'e çevirir.
package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/repository"
)

const tokenIssuer = "callrelay"

// AuthService, anonim katılımcı kimliği ve access token'ları.
//
// Kayıt bir participant id ve cihazda saklanan rastgele bir secret üretir.
// Cihaz access token'ı süresi dolunca secret ile yenisini alır.
type AuthService interface {
	SignUpAnonymous(ctx context.Context, req *models.AnonymousSignUpRequest) (*models.Credentials, error)
	IssueToken(ctx context.Context, req *models.TokenRequest) (*models.Credentials, error)
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

type authService struct {
	participants repository.ParticipantRepository
	jwtSecret    []byte
	accessExp    time.Duration
	bcryptCost   int
}

func NewAuthService(participants repository.ParticipantRepository, jwtSecret string, accessExpMinutes int) AuthService {
	return &authService{
		participants: participants,
		jwtSecret:    []byte(jwtSecret),
		accessExp:    time.Duration(accessExpMinutes) * time.Minute,
		bcryptCost:   bcrypt.DefaultCost,
	}
}

func (s *authService) SignUpAnonymous(ctx context.Context, req *models.AnonymousSignUpRequest) (*models.Credentials, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	secret, err := randomSecret()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash secret: %w", err)
	}

	p := &models.Participant{
		ID:          uuid.NewString(),
		DisplayName: req.DisplayName,
		SecretHash:  string(hash),
	}
	if err := s.participants.Create(ctx, p); err != nil {
		return nil, err
	}

	creds, err := s.credentialsFor(p)
	if err != nil {
		return nil, err
	}
	creds.Secret = secret
	return creds, nil
}

func (s *authService) IssueToken(ctx context.Context, req *models.TokenRequest) (*models.Credentials, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	p, err := s.participants.GetByID(ctx, req.ParticipantID)
	if err != nil {
		if errors.Is(err, pkg.ErrNotFound) {
			return nil, fmt.Errorf("%w: invalid participant or secret", pkg.ErrUnauthorized)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.SecretHash), []byte(req.Secret)); err != nil {
		return nil, fmt.Errorf("%w: invalid participant or secret", pkg.ErrUnauthorized)
	}

	return s.credentialsFor(p)
}

func (s *authService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}
	return claims, nil
}

func (s *authService) credentialsFor(p *models.Participant) (*models.Credentials, error) {
	now := time.Now()
	claims := &models.TokenClaims{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExp)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &models.Credentials{
		ParticipantID: p.ID,
		DisplayName:   p.DisplayName,
		AccessToken:   signed,
		ExpiresIn:     int(s.accessExp.Seconds()),
	}, nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
