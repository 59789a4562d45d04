package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulseiq/pulse-engine/pkg/database"
)

// PrefScoreUpdates gates score-change notifications.
const PrefScoreUpdates = "score_updates"

// PreferenceRepository looks up per-user notification preferences.
type PreferenceRepository interface {
	// ShouldNotify reports whether the user has the given notification
	// kind enabled. Users without a stored preference default to enabled.
	ShouldNotify(ctx context.Context, userID uuid.UUID, prefKey string) (bool, error)

	Set(ctx context.Context, userID uuid.UUID, prefKey string, enabled bool) error
}

type preferenceRepository struct {
	db *database.DB
}

// NewPreferenceRepository creates a new preference repository.
func NewPreferenceRepository(db *database.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

var _ PreferenceRepository = (*preferenceRepository)(nil)

func (r *preferenceRepository) ShouldNotify(ctx context.Context, userID uuid.UUID, prefKey string) (bool, error) {
	var enabled bool
	err := r.db.QueryRow(ctx,
		`SELECT enabled FROM notification_prefs WHERE user_id = $1 AND pref_key = $2`,
		userID, prefKey).Scan(&enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read notification preference: %w", err)
	}
	return enabled, nil
}

func (r *preferenceRepository) Set(ctx context.Context, userID uuid.UUID, prefKey string, enabled bool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notification_prefs (user_id, pref_key, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, pref_key) DO UPDATE SET enabled = EXCLUDED.enabled`,
		userID, prefKey, enabled)
	if err != nil {
		return fmt.Errorf("failed to set notification preference: %w", err)
	}
	return nil
}
