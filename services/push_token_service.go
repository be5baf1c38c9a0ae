package services

import (
	"context"
	"fmt"
	"log"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
	"github.com/akinalp/callrelay/repository"
)

// PushTokenService, cihazların push endpoint kayıtlarını yönetir.
type PushTokenService interface {
	Register(ctx context.Context, ownerID string, req *models.RegisterPushTokenRequest) (*models.PushEndpoint, error)
	List(ctx context.Context, ownerID string) ([]models.PushEndpoint, error)
	Remove(ctx context.Context, ownerID, token string) error
}

type pushTokenService struct {
	repo repository.PushTokenRepository
}

func NewPushTokenService(repo repository.PushTokenRepository) PushTokenService {
	return &pushTokenService{repo: repo}
}

// Register, token'ı upsert eder. Aynı token tekrar gelirse kayıt tazelenir;
// başka bir katılımcıya aitse sahipliği yeni katılımcıya geçer.
func (s *pushTokenService) Register(ctx context.Context, ownerID string, req *models.RegisterPushTokenRequest) (*models.PushEndpoint, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}
	platform, _ := models.ParsePlatform(req.DeviceOS)

	ep := &models.PushEndpoint{
		OwnerID:  ownerID,
		Token:    req.PushToken,
		Platform: platform,
		BundleID: req.BundleID,
	}

	var err error
	if req.PreviousToken != "" {
		err = s.repo.Rotate(ctx, req.PreviousToken, ep)
	} else {
		err = s.repo.Upsert(ctx, ep)
	}
	if err != nil {
		return nil, err
	}

	log.Printf("[registry] %s endpoint registered for %s", ep.Platform, ownerID)
	return ep, nil
}

func (s *pushTokenService) List(ctx context.Context, ownerID string) ([]models.PushEndpoint, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *pushTokenService) Remove(ctx context.Context, ownerID, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", pkg.ErrBadRequest)
	}
	return s.repo.DeleteByToken(ctx, ownerID, token)
}
