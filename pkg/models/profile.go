package models

import (
	"time"

	"github.com/google/uuid"
)

// ProvenanceManual marks a profile field that was entered by the user rather
// than set by an integration.
const ProvenanceManual = "manual"

// Profile field names used in provenance maps and missing-data lists.
const (
	FieldMonthlyRevenue  = "monthly_revenue"
	FieldGrossMarginPct  = "gross_margin_pct"
	FieldNetProfitPct    = "net_profit_pct"
	FieldChurnPct        = "churn_pct"
	FieldRepeatRatePct   = "repeat_rate_pct"
	FieldConversionPct   = "conversion_pct"
	FieldMonthlyTraffic  = "monthly_traffic"
	FieldAvgOrderValue   = "avg_order_value"
	FieldFulfillmentDays = "fulfillment_days"
	FieldRefundRatePct   = "refund_rate_pct"
)

// BusinessProfile is the durable, sparse set of business metrics for one user.
// Fields are pointers so "never reported" is distinguishable from zero.
//
// Provenance records which provider last set each field (by field name);
// fields never touched by an integration keep ProvenanceManual.
type BusinessProfile struct {
	UserID          uuid.UUID         `json:"user_id"`
	BusinessType    string            `json:"business_type"`
	MonthlyRevenue  *float64          `json:"monthly_revenue,omitempty"`
	GrossMarginPct  *float64          `json:"gross_margin_pct,omitempty"`
	NetProfitPct    *float64          `json:"net_profit_pct,omitempty"`
	ChurnPct        *float64          `json:"churn_pct,omitempty"`
	RepeatRatePct   *float64          `json:"repeat_rate_pct,omitempty"`
	ConversionPct   *float64          `json:"conversion_pct,omitempty"`
	MonthlyTraffic  *int64            `json:"monthly_traffic,omitempty"`
	AvgOrderValue   *float64          `json:"avg_order_value,omitempty"`
	FulfillmentDays *float64          `json:"fulfillment_days,omitempty"`
	RefundRatePct   *float64          `json:"refund_rate_pct,omitempty"`
	Provenance      map[string]string `json:"provenance"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// SetProvenance records providerID as the latest writer of field.
func (p *BusinessProfile) SetProvenance(field, providerID string) {
	if p.Provenance == nil {
		p.Provenance = make(map[string]string)
	}
	p.Provenance[field] = providerID
}
