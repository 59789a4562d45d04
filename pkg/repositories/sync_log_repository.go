package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pulseiq/pulse-engine/pkg/database"
	"github.com/pulseiq/pulse-engine/pkg/models"
)

// SyncLogRepository records one row per sync attempt, successful or not.
type SyncLogRepository interface {
	Insert(ctx context.Context, log *models.SyncLog) error
	ListForConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]*models.SyncLog, error)
}

type syncLogRepository struct {
	db *database.DB
}

// NewSyncLogRepository creates a new sync log repository.
func NewSyncLogRepository(db *database.DB) SyncLogRepository {
	return &syncLogRepository{db: db}
}

var _ SyncLogRepository = (*syncLogRepository)(nil)

func (r *syncLogRepository) Insert(ctx context.Context, log *models.SyncLog) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO sync_logs (connection_id, user_id, provider_id, status, error, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		log.ConnectionID, log.UserID, log.ProviderID, log.Status, log.Error,
		log.StartedAt, log.DurationMS,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("failed to insert sync log: %w", err)
	}
	return nil
}

func (r *syncLogRepository) ListForConnection(ctx context.Context, connectionID uuid.UUID, limit int) ([]*models.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, connection_id, user_id, provider_id, status, error, started_at, duration_ms
		FROM sync_logs
		WHERE connection_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, connectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		var l models.SyncLog
		if err := rows.Scan(&l.ID, &l.ConnectionID, &l.UserID, &l.ProviderID,
			&l.Status, &l.Error, &l.StartedAt, &l.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync logs: %w", err)
	}
	return logs, nil
}
