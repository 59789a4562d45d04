package services

import "github.com/pulseiq/pulse-engine/pkg/models"

// Scorer is the external scoring collaborator. The five-pillar formula is a
// black box to the pipeline; the only contract is the result shape and
// determinism for fixed inputs.
type Scorer interface {
	ComputeScore(profile *models.BusinessProfile, businessType string) (*models.ScoreResult, error)
}
