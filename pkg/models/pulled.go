package models

import (
	"encoding/json"
	"time"
)

// PulledMetrics is the provider-agnostic, sparse metric set extracted from one
// pull. Nil fields mean the provider has no opinion on that metric for this
// window; they must never clear an existing profile value.
type PulledMetrics struct {
	Revenue         *float64 `json:"revenue,omitempty"` // trailing-window revenue, normalized to monthly
	OrderCount      *int64   `json:"order_count,omitempty"`
	AvgOrderValue   *float64 `json:"avg_order_value,omitempty"`
	GrossMarginPct  *float64 `json:"gross_margin_pct,omitempty"`
	NetProfitPct    *float64 `json:"net_profit_pct,omitempty"`
	ChurnPct        *float64 `json:"churn_pct,omitempty"`
	RepeatRatePct   *float64 `json:"repeat_rate_pct,omitempty"`
	ConversionPct   *float64 `json:"conversion_pct,omitempty"`
	Traffic         *int64   `json:"traffic,omitempty"` // trailing-window sessions, normalized to monthly
	FulfillmentDays *float64 `json:"fulfillment_days,omitempty"`
	RefundRatePct   *float64 `json:"refund_rate_pct,omitempty"`
}

// IsEmpty reports whether the pull produced no metrics at all.
func (m PulledMetrics) IsEmpty() bool {
	return m.Revenue == nil && m.OrderCount == nil && m.AvgOrderValue == nil &&
		m.GrossMarginPct == nil && m.NetProfitPct == nil && m.ChurnPct == nil &&
		m.RepeatRatePct == nil && m.ConversionPct == nil && m.Traffic == nil &&
		m.FulfillmentDays == nil && m.RefundRatePct == nil
}

// PulledData is the ephemeral result of one provider pull. Raw holds the
// untouched upstream payload for audit and debugging only; mapping must use
// Metrics exclusively.
type PulledData struct {
	ProviderID  string          `json:"provider_id"`
	PulledAt    time.Time       `json:"pulled_at"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	Metrics     PulledMetrics   `json:"metrics"`
}

// Float64Ptr returns a pointer to v. Convenience for building sparse metrics.
func Float64Ptr(v float64) *float64 { return &v }

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 { return &v }
