package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
)

// Pillar weights for the composite score. They sum to 1.
var pillarWeights = map[models.Pillar]float64{
	models.PillarRevenue:       0.25,
	models.PillarProfitability: 0.25,
	models.PillarRetention:     0.20,
	models.PillarAcquisition:   0.15,
	models.PillarOperations:    0.15,
}

// neutralScore is assigned to a pillar when the profile has no data for it,
// so missing integrations neither inflate nor crater the composite.
const neutralScore = 50

// PillarScorer is the built-in deterministic Scorer: threshold bands per
// metric, averaged within each pillar, weighted into the composite.
type PillarScorer struct{}

// NewPillarScorer creates the default scorer.
func NewPillarScorer() *PillarScorer {
	return &PillarScorer{}
}

var _ Scorer = (*PillarScorer)(nil)

// ComputeScore derives the five pillar scores and the composite from the
// profile. Deterministic: same profile, same result.
func (s *PillarScorer) ComputeScore(profile *models.BusinessProfile, businessType string) (*models.ScoreResult, error) {
	result := &models.ScoreResult{
		Pillars: make(map[models.Pillar]models.PillarAssessment, len(models.AllPillars)),
	}

	var missing []string
	result.Pillars[models.PillarRevenue] = scoreRevenue(profile, &missing)
	result.Pillars[models.PillarProfitability] = scoreProfitability(profile, &missing)
	result.Pillars[models.PillarRetention] = scoreRetention(profile, &missing)
	result.Pillars[models.PillarAcquisition] = scoreAcquisition(profile, &missing)
	result.Pillars[models.PillarOperations] = scoreOperations(profile, &missing)
	sort.Strings(missing)
	result.MissingData = missing

	var composite float64
	for pillar, assessment := range result.Pillars {
		composite += pillarWeights[pillar] * float64(assessment.Score)
	}
	result.Score = int(math.Round(composite))

	weakest := weakestPillar(result.Pillars)
	result.PrimaryRisk = fmt.Sprintf("%s is your weakest pillar at %d/100",
		weakest.Label(), result.Pillars[weakest].Score)
	if levers := result.Pillars[weakest].Levers; len(levers) > 0 {
		result.FastestLever = levers[0]
	}
	for _, pillar := range models.AllPillars {
		result.RecommendedNextSteps = append(result.RecommendedNextSteps,
			result.Pillars[pillar].Levers...)
	}

	return result, nil
}

var (
	revenueBands = []providers.Band{
		{Min: 50000, Score: 90}, {Min: 15000, Score: 75}, {Min: 5000, Score: 60},
		{Min: 1000, Score: 45}, {Min: 0, Score: 25},
	}
	grossMarginBands = []providers.Band{
		{Min: 60, Score: 90}, {Min: 40, Score: 75}, {Min: 25, Score: 55},
		{Min: 10, Score: 35}, {Min: 0, Score: 20},
	}
	netProfitBands = []providers.Band{
		{Min: 20, Score: 90}, {Min: 10, Score: 75}, {Min: 5, Score: 60},
		{Min: 0, Score: 40}, {Min: math.Inf(-1), Score: 15},
	}
	repeatRateBands = []providers.Band{
		{Min: 40, Score: 90}, {Min: 25, Score: 75}, {Min: 15, Score: 60},
		{Min: 5, Score: 40}, {Min: 0, Score: 20},
	}
	trafficBands = []providers.Band{
		{Min: 50000, Score: 90}, {Min: 10000, Score: 75}, {Min: 2000, Score: 55},
		{Min: 500, Score: 40}, {Min: 0, Score: 20},
	}
	conversionBands = []providers.Band{
		{Min: 4, Score: 90}, {Min: 2.5, Score: 75}, {Min: 1.5, Score: 55},
		{Min: 0.5, Score: 35}, {Min: 0, Score: 20},
	}
	churnBands = []providers.InverseBand{
		{Max: 2, Score: 90}, {Max: 5, Score: 75}, {Max: 10, Score: 55},
		{Max: 20, Score: 35}, {Max: math.Inf(1), Score: 15},
	}
	fulfillmentBands = []providers.InverseBand{
		{Max: 1, Score: 90}, {Max: 2, Score: 75}, {Max: 4, Score: 55},
		{Max: 7, Score: 35}, {Max: math.Inf(1), Score: 15},
	}
	refundRateBands = []providers.InverseBand{
		{Max: 1, Score: 90}, {Max: 3, Score: 75}, {Max: 6, Score: 55},
		{Max: 10, Score: 35}, {Max: math.Inf(1), Score: 15},
	}
)

func scoreRevenue(p *models.BusinessProfile, missing *[]string) models.PillarAssessment {
	if p.MonthlyRevenue == nil {
		*missing = append(*missing, models.FieldMonthlyRevenue)
		return models.PillarAssessment{
			Score:  neutralScore,
			Levers: []string{"Connect a sales platform to track revenue"},
		}
	}

	revenue := *p.MonthlyRevenue
	score := providers.BandScore(revenue, revenueBands)
	assessment := models.PillarAssessment{
		Score:   score,
		Reasons: []string{fmt.Sprintf("Monthly revenue at $%.0f", revenue)},
	}
	if score < 75 {
		assessment.Levers = []string{"Grow monthly revenue through upsells or pricing"}
	}
	if p.AvgOrderValue != nil && *p.AvgOrderValue < 50 {
		assessment.Levers = append(assessment.Levers, "Raise average order value with bundles")
	}
	return assessment
}

func scoreProfitability(p *models.BusinessProfile, missing *[]string) models.PillarAssessment {
	var scores []int
	var reasons, levers []string

	if p.GrossMarginPct != nil {
		score := providers.BandScore(*p.GrossMarginPct, grossMarginBands)
		scores = append(scores, score)
		reasons = append(reasons, fmt.Sprintf("Gross margin at %.1f%%", *p.GrossMarginPct))
		if score < 75 {
			levers = append(levers, "Improve gross margin via supplier or pricing review")
		}
	} else {
		*missing = append(*missing, models.FieldGrossMarginPct)
	}

	if p.NetProfitPct != nil {
		score := providers.BandScore(*p.NetProfitPct, netProfitBands)
		scores = append(scores, score)
		reasons = append(reasons, fmt.Sprintf("Net profit at %.1f%%", *p.NetProfitPct))
	} else {
		*missing = append(*missing, models.FieldNetProfitPct)
	}

	if len(scores) == 0 {
		return models.PillarAssessment{
			Score:  neutralScore,
			Levers: []string{"Connect accounting to track profitability"},
		}
	}
	return models.PillarAssessment{Score: average(scores), Reasons: reasons, Levers: levers}
}

func scoreRetention(p *models.BusinessProfile, missing *[]string) models.PillarAssessment {
	var scores []int
	var reasons, levers []string

	if p.ChurnPct != nil {
		score := providers.InverseBandScore(*p.ChurnPct, churnBands)
		scores = append(scores, score)
		reasons = append(reasons, fmt.Sprintf("Churn at %.1f%%", *p.ChurnPct))
		if score < 75 {
			levers = append(levers, "Reduce churn with onboarding and win-back flows")
		}
	} else {
		*missing = append(*missing, models.FieldChurnPct)
	}

	if p.RepeatRatePct != nil {
		score := providers.BandScore(*p.RepeatRatePct, repeatRateBands)
		scores = append(scores, score)
		reasons = append(reasons, fmt.Sprintf("Repeat purchase rate at %.1f%%", *p.RepeatRatePct))
		if score < 75 {
			levers = append(levers, "Launch a post-purchase email sequence")
		}
	} else {
		*missing = append(*missing, models.FieldRepeatRatePct)
	}

	if len(scores) == 0 {
		return models.PillarAssessment{
			Score:  neutralScore,
			Levers: []string{"Track repeat purchases to measure retention"},
		}
	}
	return models.PillarAssessment{Score: average(scores), Reasons: reasons, Levers: levers}
}

func scoreAcquisition(p *models.BusinessProfile, missing *[]string) models.PillarAssessment {
	var scores []int
	var reasons, levers []string

	if p.MonthlyTraffic != nil {
		score := providers.BandScore(float64(*p.MonthlyTraffic), trafficBands)
		scores = append(scores, score)
		reasons = append(reasons, fmt.Sprintf("Monthly traffic at %d sessions", *p.MonthlyTraffic))
		if score < 75 {
			levers = append(levers, "Invest in content or paid acquisition")
		}
	} else {
		*missing = append(*missing, models.FieldMonthlyTraffic)
	}

	if p.ConversionPct != nil {
		score := providers.BandScore(*p.ConversionPct, conversionBands)
		scores = append(scores, score)
		reasons = append(reasons, fmt.Sprintf("Conversion at %.2f%%", *p.ConversionPct))
		if score < 75 {
			levers = append(levers, "Optimize checkout to lift conversion")
		}
	} else {
		*missing = append(*missing, models.FieldConversionPct)
	}

	if len(scores) == 0 {
		return models.PillarAssessment{
			Score:  neutralScore,
			Levers: []string{"Connect analytics to measure acquisition"},
		}
	}
	return models.PillarAssessment{Score: average(scores), Reasons: reasons, Levers: levers}
}

func scoreOperations(p *models.BusinessProfile, missing *[]string) models.PillarAssessment {
	var scores []int
	var reasons, levers []string

	if p.FulfillmentDays != nil {
		score := providers.InverseBandScore(*p.FulfillmentDays, fulfillmentBands)
		scores = append(scores, score)
		reasons = append(reasons, fmt.Sprintf("Fulfillment in %.1f days", *p.FulfillmentDays))
		if score < 75 {
			levers = append(levers, "Shorten fulfillment time with faster dispatch")
		}
	} else {
		*missing = append(*missing, models.FieldFulfillmentDays)
	}

	if p.RefundRatePct != nil {
		score := providers.InverseBandScore(*p.RefundRatePct, refundRateBands)
		scores = append(scores, score)
		reasons = append(reasons, fmt.Sprintf("Refund rate at %.1f%%", *p.RefundRatePct))
		if score < 75 {
			levers = append(levers, "Cut refunds with clearer product pages")
		}
	} else {
		*missing = append(*missing, models.FieldRefundRatePct)
	}

	if len(scores) == 0 {
		return models.PillarAssessment{
			Score:  neutralScore,
			Levers: []string{"Track fulfillment and refunds to measure operations"},
		}
	}
	return models.PillarAssessment{Score: average(scores), Reasons: reasons, Levers: levers}
}

func average(scores []int) int {
	sum := 0
	for _, s := range scores {
		sum += s
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}

// weakestPillar returns the lowest-scoring pillar, breaking ties by display
// order so results stay deterministic.
func weakestPillar(pillars map[models.Pillar]models.PillarAssessment) models.Pillar {
	weakest := models.AllPillars[0]
	for _, pillar := range models.AllPillars {
		if pillars[pillar].Score < pillars[weakest].Score {
			weakest = pillar
		}
	}
	return weakest
}
