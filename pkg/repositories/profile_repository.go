package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pulseiq/pulse-engine/pkg/database"
	"github.com/pulseiq/pulse-engine/pkg/models"
)

// ProfileRepository defines data access for business profiles.
type ProfileRepository interface {
	// GetOrCreate returns the user's profile, creating an empty one on
	// first touch.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error)

	// Update writes the merged profile back. The merge layer works on the
	// in-memory profile, so this is a full-row write of an already
	// field-granular merge.
	Update(ctx context.Context, profile *models.BusinessProfile) error
}

type profileRepository struct {
	db *database.DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *database.DB) ProfileRepository {
	return &profileRepository{db: db}
}

var _ ProfileRepository = (*profileRepository)(nil)

func (r *profileRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.BusinessProfile, error) {
	query := `
		SELECT user_id, business_type, monthly_revenue, gross_margin_pct, net_profit_pct,
		       churn_pct, repeat_rate_pct, conversion_pct, monthly_traffic, avg_order_value,
		       fulfillment_days, refund_rate_pct, provenance, created_at, updated_at
		FROM business_profiles WHERE user_id = $1`

	var p models.BusinessProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.BusinessType, &p.MonthlyRevenue, &p.GrossMarginPct, &p.NetProfitPct,
		&p.ChurnPct, &p.RepeatRatePct, &p.ConversionPct, &p.MonthlyTraffic, &p.AvgOrderValue,
		&p.FulfillmentDays, &p.RefundRatePct, &p.Provenance, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	// First touch: create an empty profile. ON CONFLICT guards a racing
	// creator; re-read afterwards either way.
	_, err = r.db.Exec(ctx, `
		INSERT INTO business_profiles (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	err = r.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.BusinessType, &p.MonthlyRevenue, &p.GrossMarginPct, &p.NetProfitPct,
		&p.ChurnPct, &p.RepeatRatePct, &p.ConversionPct, &p.MonthlyTraffic, &p.AvgOrderValue,
		&p.FulfillmentDays, &p.RefundRatePct, &p.Provenance, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read profile: %w", err)
	}
	return &p, nil
}

func (r *profileRepository) Update(ctx context.Context, profile *models.BusinessProfile) error {
	profile.UpdatedAt = time.Now()

	tag, err := r.db.Exec(ctx, `
		UPDATE business_profiles
		SET business_type = $2,
		    monthly_revenue = $3,
		    gross_margin_pct = $4,
		    net_profit_pct = $5,
		    churn_pct = $6,
		    repeat_rate_pct = $7,
		    conversion_pct = $8,
		    monthly_traffic = $9,
		    avg_order_value = $10,
		    fulfillment_days = $11,
		    refund_rate_pct = $12,
		    provenance = $13,
		    updated_at = $14
		WHERE user_id = $1`,
		profile.UserID, profile.BusinessType, profile.MonthlyRevenue, profile.GrossMarginPct,
		profile.NetProfitPct, profile.ChurnPct, profile.RepeatRatePct, profile.ConversionPct,
		profile.MonthlyTraffic, profile.AvgOrderValue, profile.FulfillmentDays,
		profile.RefundRatePct, profile.Provenance, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("profile for user %s does not exist", profile.UserID)
	}
	return nil
}
