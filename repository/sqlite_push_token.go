package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akinalp/callrelay/database"
	"github.com/akinalp/callrelay/models"
	"github.com/akinalp/callrelay/pkg"
)

type sqlitePushTokenRepo struct {
	db database.TxQuerier
}

// NewSQLitePushTokenRepo, constructor. db bir *sql.DB veya *sql.Tx olabilir.
func NewSQLitePushTokenRepo(db database.TxQuerier) PushTokenRepository {
	return &sqlitePushTokenRepo{db: db}
}

func (r *sqlitePushTokenRepo) Upsert(ctx context.Context, ep *models.PushEndpoint) error {
	return upsertSQLite(ctx, r.db, ep)
}

// Rotate, eski token'ı silip yenisini yazar. Bağlantı *sql.DB ise iki adım
// tek transaction'da koşar; zaten bir tx içindeysek doğrudan o kullanılır.
func (r *sqlitePushTokenRepo) Rotate(ctx context.Context, previousToken string, ep *models.PushEndpoint) error {
	conn, ok := r.db.(*sql.DB)
	if !ok {
		return rotateSQLite(ctx, r.db, previousToken, ep)
	}
	return database.WithTx(ctx, conn, func(tx *sql.Tx) error {
		return rotateSQLite(ctx, tx, previousToken, ep)
	})
}

func (r *sqlitePushTokenRepo) ListByOwner(ctx context.Context, ownerID string) ([]models.PushEndpoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, owner_id, device_os, bundle_id, registered_at
		FROM push_tokens WHERE owner_id = ?
		ORDER BY registered_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list push tokens: %w", err)
	}
	defer rows.Close()

	endpoints := make([]models.PushEndpoint, 0, 2)
	for rows.Next() {
		var ep models.PushEndpoint
		if err := rows.Scan(&ep.Token, &ep.OwnerID, &ep.Platform, &ep.BundleID, &ep.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		ep.ID = ep.Token
		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate push tokens: %w", err)
	}
	return endpoints, nil
}

// DeleteByToken, sadece ownerID'ye ait kaydı siler; başkasının token'ı ise ErrNotFound.
func (r *sqlitePushTokenRepo) DeleteByToken(ctx context.Context, ownerID, token string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM push_tokens WHERE token = ? AND owner_id = ?`, token, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete push token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkg.ErrNotFound
	}
	return nil
}

func upsertSQLite(ctx context.Context, q database.TxQuerier, ep *models.PushEndpoint) error {
	if ep.RegisteredAt.IsZero() {
		ep.RegisteredAt = time.Now().UTC()
	}
	ep.ID = ep.Token

	_, err := q.ExecContext(ctx, `
		INSERT INTO push_tokens (token, owner_id, device_os, bundle_id, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO UPDATE SET
			owner_id      = excluded.owner_id,
			device_os     = excluded.device_os,
			bundle_id     = excluded.bundle_id,
			registered_at = excluded.registered_at`,
		ep.Token, ep.OwnerID, ep.Platform, ep.BundleID, ep.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert push token: %w", err)
	}
	return nil
}

func rotateSQLite(ctx context.Context, q database.TxQuerier, previousToken string, ep *models.PushEndpoint) error {
	if previousToken != "" && previousToken != ep.Token {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM push_tokens WHERE token = ? AND owner_id = ?`, previousToken, ep.OwnerID,
		); err != nil {
			return fmt.Errorf("failed to delete previous push token: %w", err)
		}
	}
	return upsertSQLite(ctx, q, ep)
}
