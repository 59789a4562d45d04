package models

import (
	"time"

	"github.com/google/uuid"
)

// PillarAssessment is the scoring collaborator's verdict on one pillar.
type PillarAssessment struct {
	Score   int      `json:"score"` // 0-100
	Reasons []string `json:"reasons,omitempty"`
	Levers  []string `json:"levers,omitempty"`
}

// ScoreResult is what the external scoring collaborator returns. The pipeline
// treats the formula as a black box; it only relies on the shape below and on
// determinism for fixed inputs.
type ScoreResult struct {
	Score                int                         `json:"score"` // 0-100 composite
	Pillars              map[Pillar]PillarAssessment `json:"pillars"`
	PrimaryRisk          string                      `json:"primary_risk"`
	FastestLever         string                      `json:"fastest_lever"`
	RecommendedNextSteps []string                    `json:"recommended_next_steps,omitempty"`
	MissingData          []string                    `json:"missing_data,omitempty"`
}

// ScoreSnapshot is one immutable, timestamped record of a user's composite and
// per-pillar scores. Snapshots are append-only; the current score is the row
// with the greatest CreatedAt for the user.
type ScoreSnapshot struct {
	ID                uuid.UUID      `json:"id"`
	UserID            uuid.UUID      `json:"user_id"`
	CreatedAt         time.Time      `json:"created_at"`
	Score             int            `json:"score"`
	PillarScores      map[Pillar]int `json:"pillar_scores"`
	PrimaryRisk       string         `json:"primary_risk"`
	FastestLever      string         `json:"fastest_lever"`
	MissingDataFields []string       `json:"missing_data_fields,omitempty"`
	Summary           string         `json:"summary,omitempty"` // one-line delta narrative vs previous snapshot
}
