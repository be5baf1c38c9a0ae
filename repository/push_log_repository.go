package repository

import (
	"context"
	"time"

	"github.com/akinalp/callrelay/models"
)

// PushLogRepository, dispatch denemelerinin izini tutar.
type PushLogRepository interface {
	Append(ctx context.Context, entry *models.PushLogEntry) error
	ListByCall(ctx context.Context, callID string, limit int) ([]models.PushLogEntry, error)
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
