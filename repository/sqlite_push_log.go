package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/callrelay/database"
	"github.com/akinalp/callrelay/models"
)

type sqlitePushLogRepo struct {
	db database.TxQuerier
}

func NewSQLitePushLogRepo(db database.TxQuerier) PushLogRepository {
	return &sqlitePushLogRepo{db: db}
}

func (r *sqlitePushLogRepo) Append(ctx context.Context, e *models.PushLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO push_log (id, call_id, caller_id, callee_id, owner_id, token, platform, kind, accepted, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CallID, e.CallerID, e.CalleeID, e.OwnerID, e.Token, e.Platform, e.Kind, e.Accepted, e.Reason, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append push log: %w", err)
	}
	return nil
}

func (r *sqlitePushLogRepo) ListByCall(ctx context.Context, callID string, limit int) ([]models.PushLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, call_id, caller_id, callee_id, owner_id, token, platform, kind, accepted, reason, created_at
		FROM push_log WHERE call_id = ?
		ORDER BY created_at ASC LIMIT ?`, callID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list push log: %w", err)
	}
	defer rows.Close()

	entries := make([]models.PushLogEntry, 0)
	for rows.Next() {
		var e models.PushLogEntry
		if err := rows.Scan(&e.ID, &e.CallID, &e.CallerID, &e.CalleeID, &e.OwnerID, &e.Token, &e.Platform,
			&e.Kind, &e.Accepted, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan push log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate push log: %w", err)
	}
	return entries, nil
}

// DeleteOlderThan, retention için eski kayıtları siler ve silinen satır sayısını döner.
func (r *sqlitePushLogRepo) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM push_log WHERE created_at < ?`, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to prune push log: %w", err)
	}
	return res.RowsAffected()
}
