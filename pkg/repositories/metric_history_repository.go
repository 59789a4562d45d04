package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulseiq/pulse-engine/pkg/database"
	"github.com/pulseiq/pulse-engine/pkg/models"
)

// MetricHistoryRepository defines data access for weekly trend roll-ups.
// This is the one store where upserts are allowed: repeated syncs within an
// ISO week overwrite the same (user, pillar, week) row instead of stacking
// duplicates.
type MetricHistoryRepository interface {
	Upsert(ctx context.Context, row *models.MetricHistory) error
	ListWeeks(ctx context.Context, userID uuid.UUID, pillar models.Pillar, weeks int) ([]*models.MetricHistory, error)
}

type metricHistoryRepository struct {
	db *database.DB
}

// NewMetricHistoryRepository creates a new metric history repository.
func NewMetricHistoryRepository(db *database.DB) MetricHistoryRepository {
	return &metricHistoryRepository{db: db}
}

var _ MetricHistoryRepository = (*metricHistoryRepository)(nil)

func (r *metricHistoryRepository) Upsert(ctx context.Context, row *models.MetricHistory) error {
	row.UpdatedAt = time.Now()

	_, err := r.db.Exec(ctx, `
		INSERT INTO metric_history (user_id, pillar, week_of, score, metrics, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, pillar, week_of) DO UPDATE
		SET score = EXCLUDED.score,
		    metrics = EXCLUDED.metrics,
		    updated_at = EXCLUDED.updated_at`,
		row.UserID, row.Pillar, row.WeekOf, row.Score, row.Metrics, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metric history: %w", err)
	}
	return nil
}

func (r *metricHistoryRepository) ListWeeks(ctx context.Context, userID uuid.UUID, pillar models.Pillar, weeks int) ([]*models.MetricHistory, error) {
	if weeks <= 0 {
		weeks = 12
	}
	rows, err := r.db.Query(ctx, `
		SELECT user_id, pillar, week_of, score, metrics, updated_at
		FROM metric_history
		WHERE user_id = $1 AND pillar = $2
		ORDER BY week_of DESC
		LIMIT $3`, userID, pillar, weeks)
	if err != nil {
		return nil, fmt.Errorf("failed to list metric history: %w", err)
	}
	defer rows.Close()

	var result []*models.MetricHistory
	for rows.Next() {
		var h models.MetricHistory
		if err := rows.Scan(&h.UserID, &h.Pillar, &h.WeekOf, &h.Score, &h.Metrics, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric history: %w", err)
		}
		result = append(result, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metric history: %w", err)
	}
	return result, nil
}
