package repository

import (
	"context"

	"github.com/akinalp/callrelay/models"
)

// ParticipantRepository, anonim katılımcı kayıtları için interface.
type ParticipantRepository interface {
	Create(ctx context.Context, p *models.Participant) error
	GetByID(ctx context.Context, id string) (*models.Participant, error)
}
