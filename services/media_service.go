package services

import (
	"fmt"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/akinalp/callrelay/config"
	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
)

// MediaService, kabul edilmiş bir çağrının medya odası için LiveKit token'ı üretir.
// Medya akışının kendisi relay'in dışındadır; relay sadece katılım yetkisini imzalar.
type MediaService interface {
	JoinToken(participantID, displayName string, req *models.MediaTokenRequest) (*models.MediaToken, error)
}

type mediaService struct {
	cfg      config.LiveKitConfig
	validFor time.Duration
}

func NewMediaService(cfg config.LiveKitConfig) MediaService {
	return &mediaService{cfg: cfg, validFor: 2 * time.Hour}
}

func (s *mediaService) JoinToken(participantID, displayName string, req *models.MediaTokenRequest) (*models.MediaToken, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}
	if s.cfg.APIKey == "" || s.cfg.APISecret == "" {
		return nil, fmt.Errorf("%w: media server not configured", pkg.ErrInternal)
	}

	canPublish := true
	canSubscribe := true

	at := auth.NewAccessToken(s.cfg.APIKey, s.cfg.APISecret)
	at.AddGrant(&auth.VideoGrant{
		RoomJoin:     true,
		Room:         req.Channel,
		CanPublish:   &canPublish,
		CanSubscribe: &canSubscribe,
	}).
		SetIdentity(participantID).
		SetName(displayName).
		SetValidFor(s.validFor)

	token, err := at.ToJWT()
	if err != nil {
		return nil, fmt.Errorf("failed to generate livekit token: %w", err)
	}

	return &models.MediaToken{
		Token:   token,
		URL:     s.cfg.URL,
		Channel: req.Channel,
	}, nil
}
