package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
)

// PostgresPushTokenRepo, PushTokenRepository'nin PostgreSQL implementasyonu.
// Şema constructor'da idempotent olarak kurulur; SQLite migration'larından bağımsızdır.
type PostgresPushTokenRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresPushTokenRepo, pool açar ve push_tokens tablosunu hazırlar.
func NewPostgresPushTokenRepo(ctx context.Context, databaseURL string) (*PostgresPushTokenRepo, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initPushTokenSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	log.Println("[registry] postgres backend ready")
	return &PostgresPushTokenRepo{pool: pool}, nil
}

func initPushTokenSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS push_tokens (
			token TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			device_os TEXT NOT NULL,
			bundle_id TEXT NOT NULL DEFAULT '',
			registered_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_push_tokens_owner ON push_tokens (owner_id);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const pgUpsertPushToken = `
	INSERT INTO push_tokens (token, owner_id, device_os, bundle_id, registered_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (token) DO UPDATE SET
		owner_id = EXCLUDED.owner_id,
		device_os = EXCLUDED.device_os,
		bundle_id = EXCLUDED.bundle_id,
		registered_at = EXCLUDED.registered_at`

func (r *PostgresPushTokenRepo) Upsert(ctx context.Context, ep *models.PushEndpoint) error {
	prepareEndpoint(ep)
	if _, err := r.pool.Exec(ctx, pgUpsertPushToken,
		ep.Token, ep.OwnerID, string(ep.Platform), ep.BundleID, ep.RegisteredAt,
	); err != nil {
		return fmt.Errorf("upsert push token: %w", err)
	}
	return nil
}

func (r *PostgresPushTokenRepo) Rotate(ctx context.Context, previousToken string, ep *models.PushEndpoint) error {
	prepareEndpoint(ep)
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if previousToken != "" && previousToken != ep.Token {
			if _, err := tx.Exec(ctx,
				`DELETE FROM push_tokens WHERE token=$1 AND owner_id=$2`, previousToken, ep.OwnerID,
			); err != nil {
				return fmt.Errorf("delete previous push token: %w", err)
			}
		}
		if _, err := tx.Exec(ctx, pgUpsertPushToken,
			ep.Token, ep.OwnerID, string(ep.Platform), ep.BundleID, ep.RegisteredAt,
		); err != nil {
			return fmt.Errorf("upsert push token: %w", err)
		}
		return nil
	})
}

func (r *PostgresPushTokenRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.PushEndpoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT token, owner_id, device_os, bundle_id, registered_at
		FROM push_tokens WHERE owner_id=$1 ORDER BY registered_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query push tokens: %w", err)
	}
	defer rows.Close()

	endpoints := make([]models.PushEndpoint, 0, 2)
	for rows.Next() {
		var (
			ep       models.PushEndpoint
			platform string
		)
		if err := rows.Scan(&ep.Token, &ep.OwnerID, &platform, &ep.BundleID, &ep.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan push token row: %w", err)
		}
		ep.ID = ep.Token
		ep.Platform = models.Platform(platform)
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate push token rows: %w", err)
	}
	return endpoints, nil
}

func (r *PostgresPushTokenRepo) DeleteByToken(ctx context.Context, ownerID, token string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM push_tokens WHERE token=$1 AND owner_id=$2`, token, ownerID)
	if err != nil {
		return fmt.Errorf("delete push token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

// Close, pool'u kapatır.
func (r *PostgresPushTokenRepo) Close() error {
	r.pool.Close()
	return nil
}

func prepareEndpoint(ep *models.PushEndpoint) {
	if ep.RegisteredAt.IsZero() {
		ep.RegisteredAt = time.Now().UTC()
	}
	ep.ID = ep.Token
}
