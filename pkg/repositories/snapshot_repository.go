package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/database"
	"github.com/pulseiq/pulse-engine/pkg/models"
)

// SnapshotRepository defines data access for score snapshots. The table is
// append-only: rows are inserted and never updated or deleted, so trend views
// read history directly and "previous score" is always the row before the one
// just inserted.
type SnapshotRepository interface {
	Insert(ctx context.Context, snapshot *models.ScoreSnapshot) error

	// GetLatest returns the user's most recent snapshot, or
	// apperrors.ErrNotFound before the first recompute.
	GetLatest(ctx context.Context, userID uuid.UUID) (*models.ScoreSnapshot, error)

	List(ctx context.Context, userID uuid.UUID, limit int) ([]*models.ScoreSnapshot, error)
	Count(ctx context.Context, userID uuid.UUID) (int64, error)
}

type snapshotRepository struct {
	db *database.DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *database.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

var _ SnapshotRepository = (*snapshotRepository)(nil)

func (r *snapshotRepository) Insert(ctx context.Context, s *models.ScoreSnapshot) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO score_snapshots (user_id, created_at, score, pillar_scores,
			primary_risk, fastest_lever, missing_data_fields, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		s.UserID, s.CreatedAt, s.Score, s.PillarScores,
		s.PrimaryRisk, s.FastestLever, s.MissingDataFields, s.Summary,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

func (r *snapshotRepository) GetLatest(ctx context.Context, userID uuid.UUID) (*models.ScoreSnapshot, error) {
	var s models.ScoreSnapshot
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, created_at, score, pillar_scores, primary_risk,
		       fastest_lever, missing_data_fields, summary
		FROM score_snapshots
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, userID).Scan(
		&s.ID, &s.UserID, &s.CreatedAt, &s.Score, &s.PillarScores, &s.PrimaryRisk,
		&s.FastestLever, &s.MissingDataFields, &s.Summary,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return &s, nil
}

func (r *snapshotRepository) List(ctx context.Context, userID uuid.UUID, limit int) ([]*models.ScoreSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, created_at, score, pillar_scores, primary_risk,
		       fastest_lever, missing_data_fields, summary
		FROM score_snapshots
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.ScoreSnapshot
	for rows.Next() {
		var s models.ScoreSnapshot
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.CreatedAt, &s.Score, &s.PillarScores, &s.PrimaryRisk,
			&s.FastestLever, &s.MissingDataFields, &s.Summary,
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshots: %w", err)
	}
	return snapshots, nil
}

func (r *snapshotRepository) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM score_snapshots WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}
