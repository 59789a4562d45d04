package providers

// Band maps a metric threshold to a score. Band tables are business
// heuristics owned by each adapter, listed from highest threshold down.
type Band struct {
	Min   float64
	Score int
}

// BandScore returns the score of the first band whose Min is <= value.
// Tables must end with a Min of 0 (or the applicable floor); if nothing
// matches, the last band's score is returned.
func BandScore(value float64, bands []Band) int {
	for _, b := range bands {
		if value >= b.Min {
			return b.Score
		}
	}
	if len(bands) == 0 {
		return 0
	}
	return bands[len(bands)-1].Score
}

// InverseBandScore scores metrics where lower is better (churn, refund rate,
// fulfillment time). Tables list Max thresholds from lowest up.
func InverseBandScore(value float64, bands []InverseBand) int {
	for _, b := range bands {
		if value <= b.Max {
			return b.Score
		}
	}
	if len(bands) == 0 {
		return 0
	}
	return bands[len(bands)-1].Score
}

// InverseBand maps an upper bound to a score.
type InverseBand struct {
	Max   float64
	Score int
}
