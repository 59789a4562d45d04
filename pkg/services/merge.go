package services

import "github.com/pulseiq/pulse-engine/pkg/models"

// applyMetrics merges pulled metrics onto the profile: last-writer-wins per
// field, scoped to the field rather than the record. Fields absent from the
// pull are left untouched (sparse overwrite, never a full replace), and each
// written field's provenance is stamped with the provider. Pure and
// idempotent for a fixed pull.
func applyMetrics(profile *models.BusinessProfile, m models.PulledMetrics, providerID string) {
	if m.Revenue != nil {
		profile.MonthlyRevenue = m.Revenue
		profile.SetProvenance(models.FieldMonthlyRevenue, providerID)
	}
	if m.GrossMarginPct != nil {
		profile.GrossMarginPct = m.GrossMarginPct
		profile.SetProvenance(models.FieldGrossMarginPct, providerID)
	}
	if m.NetProfitPct != nil {
		profile.NetProfitPct = m.NetProfitPct
		profile.SetProvenance(models.FieldNetProfitPct, providerID)
	}
	if m.ChurnPct != nil {
		profile.ChurnPct = m.ChurnPct
		profile.SetProvenance(models.FieldChurnPct, providerID)
	}
	if m.RepeatRatePct != nil {
		profile.RepeatRatePct = m.RepeatRatePct
		profile.SetProvenance(models.FieldRepeatRatePct, providerID)
	}
	if m.ConversionPct != nil {
		profile.ConversionPct = m.ConversionPct
		profile.SetProvenance(models.FieldConversionPct, providerID)
	}
	if m.Traffic != nil {
		profile.MonthlyTraffic = m.Traffic
		profile.SetProvenance(models.FieldMonthlyTraffic, providerID)
	}
	if m.AvgOrderValue != nil {
		profile.AvgOrderValue = m.AvgOrderValue
		profile.SetProvenance(models.FieldAvgOrderValue, providerID)
	}
	if m.FulfillmentDays != nil {
		profile.FulfillmentDays = m.FulfillmentDays
		profile.SetProvenance(models.FieldFulfillmentDays, providerID)
	}
	if m.RefundRatePct != nil {
		profile.RefundRatePct = m.RefundRatePct
		profile.SetProvenance(models.FieldRefundRatePct, providerID)
	}
}
