package models

import (
	"time"

	"github.com/google/uuid"
)

// MetricHistory is one weekly roll-up row per (user, pillar, week), used for
// trend charts. Rows are upserted so repeated syncs within a week keep exactly
// one row, holding the latest scores.
type MetricHistory struct {
	UserID    uuid.UUID          `json:"user_id"`
	Pillar    Pillar             `json:"pillar"`
	WeekOf    time.Time          `json:"week_of"` // Monday 00:00 UTC of the ISO week
	Score     int                `json:"score"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// WeekOf returns the Monday 00:00 UTC anchoring the ISO week containing t.
// A Sunday belongs to the week that started the preceding Monday.
func WeekOf(t time.Time) time.Time {
	t = t.UTC()
	// time.Weekday numbers Sunday as 0; shift so Monday is 0 and Sunday is 6.
	offset := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}
