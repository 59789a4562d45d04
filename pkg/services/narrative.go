package services

import (
	"fmt"

	"github.com/pulseiq/pulse-engine/pkg/logging"
	"github.com/pulseiq/pulse-engine/pkg/models"
)

// maxSummaryLength bounds the one-line delta narrative stored on a snapshot.
const maxSummaryLength = 100

// buildSummary produces the narrative for a new snapshot: the pillar with the
// largest absolute movement versus the previous snapshot, its direction, and
// the top human-readable change the adapter reported for that pillar.
func buildSummary(prev *models.ScoreSnapshot, result *models.ScoreResult, pillarResults []models.PillarMetricResult) string {
	if prev == nil {
		return logging.TruncateString(
			fmt.Sprintf("First health score computed: %d/100", result.Score), maxSummaryLength)
	}

	var (
		topPillar models.Pillar
		topDelta  int
		found     bool
	)
	for _, p := range models.AllPillars {
		assessment, ok := result.Pillars[p]
		if !ok {
			continue
		}
		prevScore, ok := prev.PillarScores[p]
		if !ok {
			continue
		}
		delta := assessment.Score - prevScore
		if !found || abs(delta) > abs(topDelta) {
			topPillar, topDelta, found = p, delta, true
		}
	}

	if !found || topDelta == 0 {
		return logging.TruncateString(
			fmt.Sprintf("Score steady at %d/100", result.Score), maxSummaryLength)
	}

	direction := "improved"
	if topDelta < 0 {
		direction = "dropped"
	}
	summary := fmt.Sprintf("%s %s %+d to %d",
		topPillar.Label(), direction, topDelta, result.Pillars[topPillar].Score)
	if change := topChange(pillarResults, topPillar); change != "" {
		summary += ": " + change
	}
	return logging.TruncateString(summary, maxSummaryLength)
}

func topChange(results []models.PillarMetricResult, pillar models.Pillar) string {
	for _, r := range results {
		if r.Pillar == pillar && len(r.Changes) > 0 {
			return r.Changes[0]
		}
	}
	return ""
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
