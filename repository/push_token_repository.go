package repository

import (
	"context"

	"github.com/akinalp/callrelay/models"
)

// PushTokenRepository, PushTokenRegistry'nin depolama sözleşmesi.
//
// Üç backend aynı davranışı sağlar (sqlite, redis, postgres):
//   - Upsert token ile anahtarlanır ve idempotenttir; aynı token başka bir
//     owner'a geçerse eski owner'ın listesinden düşer.
//   - ListByOwner hiç kayıt yoksa boş slice ve nil error döner. Boş liste
//     "ulaşılamaz" demektir, hata değildir.
type PushTokenRepository interface {
	Upsert(ctx context.Context, ep *models.PushEndpoint) error
	Rotate(ctx context.Context, previousToken string, ep *models.PushEndpoint) error
	ListByOwner(ctx context.Context, ownerID string) ([]models.PushEndpoint, error)
	DeleteByToken(ctx context.Context, ownerID, token string) error
}
