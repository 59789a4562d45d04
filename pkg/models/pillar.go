// Package models contains domain types for pulse-engine.
package models

// Pillar is one of the five weighted business-health dimensions that compose
// the overall score.
type Pillar string

const (
	PillarRevenue       Pillar = "revenue"
	PillarProfitability Pillar = "profitability"
	PillarRetention     Pillar = "retention"
	PillarAcquisition   Pillar = "acquisition"
	PillarOperations    Pillar = "operations"
)

// AllPillars lists the five pillars in display order.
var AllPillars = []Pillar{
	PillarRevenue,
	PillarProfitability,
	PillarRetention,
	PillarAcquisition,
	PillarOperations,
}

// String returns the string representation of a Pillar.
func (p Pillar) String() string {
	return string(p)
}

// IsValid returns true if p is one of the five known pillars.
func (p Pillar) IsValid() bool {
	switch p {
	case PillarRevenue, PillarProfitability, PillarRetention, PillarAcquisition, PillarOperations:
		return true
	default:
		return false
	}
}

// Label returns a human-readable label for the pillar, used in delta
// narratives and notifications.
func (p Pillar) Label() string {
	switch p {
	case PillarRevenue:
		return "Revenue"
	case PillarProfitability:
		return "Profitability"
	case PillarRetention:
		return "Retention"
	case PillarAcquisition:
		return "Acquisition"
	case PillarOperations:
		return "Operations"
	default:
		return string(p)
	}
}

// PillarMetricResult is an adapter's opinion about a single pillar after a
// pull. Absence of a pillar means "no opinion", not a zero score.
type PillarMetricResult struct {
	Pillar  Pillar             `json:"pillar"`
	Score   int                `json:"score"` // 0-100
	Metrics map[string]float64 `json:"metrics"`
	Changes []string           `json:"changes"` // ordered, human-readable deltas
}
