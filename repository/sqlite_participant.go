package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akinalp/callrelay/database"
	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
)

type sqliteParticipantRepo struct {
	db database.TxQuerier
}

func NewSQLiteParticipantRepo(db database.TxQuerier) ParticipantRepository {
	return &sqliteParticipantRepo{db: db}
}

func (r *sqliteParticipantRepo) Create(ctx context.Context, p *models.Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO participants (id, display_name, secret_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.DisplayName, p.SecretHash, p.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: participant %s", pkg.ErrAlreadyExists, p.ID)
		}
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (r *sqliteParticipantRepo) GetByID(ctx context.Context, id string) (*models.Participant, error) {
	p := &models.Participant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, display_name, secret_hash, created_at
		FROM participants WHERE id = ?`, id,
	).Scan(&p.ID, &p.DisplayName, &p.SecretHash, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	return p, nil
}
