package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncLog is one record per sync attempt, written for both successful and
// failed attempts.
type SyncLog struct {
	ID           uuid.UUID  `json:"id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	UserID       uuid.UUID  `json:"user_id"`
	ProviderID   string     `json:"provider_id"`
	Status       SyncStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	DurationMS   int64      `json:"duration_ms"`
}

// SyncOutcome is the per-connection result inside a multi-connection run.
type SyncOutcome struct {
	ConnectionID uuid.UUID  `json:"connection_id"`
	ProviderID   string     `json:"provider_id"`
	UserID       uuid.UUID  `json:"user_id"`
	Status       SyncStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
	NewScore     *int       `json:"new_score,omitempty"`
}

// SyncSummary aggregates a fleet or per-user sync run for observability.
type SyncSummary struct {
	TotalIntegrations int           `json:"total_integrations"`
	Synced            int           `json:"synced"`
	Failed            int           `json:"failed"`
	Skipped           int           `json:"skipped"` // connections already syncing elsewhere
	Results           []SyncOutcome `json:"results"`
}

// Add records one connection outcome in the summary counters.
func (s *SyncSummary) Add(outcome *SyncOutcome) {
	s.Results = append(s.Results, *outcome)
	switch outcome.Status {
	case SyncSuccess:
		s.Synced++
	case SyncFailed:
		s.Failed++
	default:
		s.Skipped++
	}
}
