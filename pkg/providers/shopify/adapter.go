// Package shopify integrates Shopify storefronts. Orders are the primary
// report; customer and checkout sub-reports degrade to omitted metrics when
// unavailable.
package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
)

const (
	providerID = "shopify"

	// pullWindowDays is the trailing window for the orders report.
	pullWindowDays = 30

	apiVersion = "2024-07"

	requestedScopes = "read_orders,read_customers,read_checkouts"
)

// Adapter implements providers.Adapter for Shopify. Shopify issues offline
// access tokens that never expire, so it does not implement TokenRefresher.
type Adapter struct {
	clientID     string
	clientSecret string
	apiBaseURL   string // test override; empty means https://{shop}
	client       *http.Client
	logger       *zap.Logger
}

// New creates a Shopify adapter from catalog settings.
func New(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (*Adapter, error) {
	if settings.ClientID == "" || settings.ClientSecret == "" {
		return nil, fmt.Errorf("shopify: client_id and client_secret are required")
	}
	return &Adapter{
		clientID:     settings.ClientID,
		clientSecret: settings.ClientSecret,
		apiBaseURL:   settings.APIBaseURL,
		client:       client,
		logger:       logger.Named("shopify"),
	}, nil
}

var _ providers.Adapter = (*Adapter)(nil)

// ID returns the provider identifier.
func (a *Adapter) ID() string { return providerID }

// AuthorizationURL builds the per-shop authorize redirect. Extra must carry
// "shop" (the myshopify domain) and "redirect_uri".
func (a *Adapter) AuthorizationURL(state string, extra map[string]string) (string, error) {
	shop := extra["shop"]
	if shop == "" {
		return "", fmt.Errorf("shopify: extra parameter \"shop\" is required")
	}

	q := url.Values{}
	q.Set("client_id", a.clientID)
	q.Set("scope", requestedScopes)
	q.Set("redirect_uri", extra["redirect_uri"])
	q.Set("state", state)

	return fmt.Sprintf("%s/admin/oauth/authorize?%s", a.shopBase(shop), q.Encode()), nil
}

// ExchangeCode swaps the callback code for an offline access token.
func (a *Adapter) ExchangeCode(ctx context.Context, code string, extra map[string]string) (*providers.OAuthResult, error) {
	shop := extra["shop"]
	if shop == "" {
		return nil, providers.NewError(providers.StageExchange, providerID, 0, "callback missing shop parameter", nil)
	}

	form := url.Values{}
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)
	form.Set("code", code)

	tok, err := providers.PostTokenForm(ctx, a.client, providerID, providers.StageExchange,
		a.shopBase(shop)+"/admin/oauth/access_token", form, nil)
	if err != nil {
		return nil, err
	}

	return &providers.OAuthResult{
		AccessToken:       tok.AccessToken,
		ExternalAccountID: shop,
		Scopes:            tok.ScopeList(),
	}, nil
}

type ordersResponse struct {
	Orders []struct {
		TotalPrice        string     `json:"total_price"`
		CreatedAt         time.Time  `json:"created_at"`
		ClosedAt          *time.Time `json:"closed_at"`
		FulfillmentStatus string     `json:"fulfillment_status"`
	} `json:"orders"`
}

type customersResponse struct {
	Customers []struct {
		OrdersCount int `json:"orders_count"`
	} `json:"customers"`
}

type checkoutsCountResponse struct {
	Count int64 `json:"count"`
}

// Pull fetches the trailing 30 days of orders plus degradable customer and
// abandoned-checkout reports. Read-only; never mutates upstream state.
func (a *Adapter) Pull(ctx context.Context, conn *models.Connection) (*models.PulledData, error) {
	shop := conn.ExternalAccountID
	if shop == "" {
		return nil, providers.NewError(providers.StagePull, providerID, 0, "connection has no shop domain", nil)
	}

	now := time.Now().UTC()
	periodStart := now.AddDate(0, 0, -pullWindowDays)
	headers := map[string]string{"X-Shopify-Access-Token": conn.AccessToken}
	base := fmt.Sprintf("%s/admin/api/%s", a.shopBase(shop), apiVersion)

	// Orders are the primary report; without them the pull fails.
	var orders ordersResponse
	ordersURL := fmt.Sprintf("%s/orders.json?status=any&created_at_min=%s&limit=250",
		base, url.QueryEscape(periodStart.Format(time.RFC3339)))
	if err := providers.GetJSON(ctx, a.client, providerID, ordersURL, headers, &orders); err != nil {
		return nil, err
	}

	metrics := models.PulledMetrics{}
	var revenue float64
	var fulfilled int
	var fulfillmentTotal float64
	for _, o := range orders.Orders {
		var price float64
		fmt.Sscanf(o.TotalPrice, "%f", &price)
		revenue += price
		if o.FulfillmentStatus == "fulfilled" && o.ClosedAt != nil {
			fulfilled++
			fulfillmentTotal += o.ClosedAt.Sub(o.CreatedAt).Hours() / 24
		}
	}

	orderCount := int64(len(orders.Orders))
	metrics.OrderCount = &orderCount
	metrics.Revenue = models.Float64Ptr(revenue)
	if orderCount > 0 {
		metrics.AvgOrderValue = models.Float64Ptr(revenue / float64(orderCount))
	}
	if fulfilled > 0 {
		metrics.FulfillmentDays = models.Float64Ptr(fulfillmentTotal / float64(fulfilled))
	}

	// Repeat-purchase rate from the customers report; degrade on failure.
	var customers customersResponse
	if err := providers.GetJSON(ctx, a.client, providerID, base+"/customers.json?limit=250", headers, &customers); err != nil {
		a.logger.Warn("customers report unavailable, omitting repeat rate", zap.Error(err))
	} else if len(customers.Customers) > 0 {
		repeat := 0
		for _, c := range customers.Customers {
			if c.OrdersCount > 1 {
				repeat++
			}
		}
		metrics.RepeatRatePct = models.Float64Ptr(100 * float64(repeat) / float64(len(customers.Customers)))
	}

	// Checkout conversion from the abandoned-checkouts count; degrade on failure.
	var abandoned checkoutsCountResponse
	abandonedURL := fmt.Sprintf("%s/checkouts/count.json?created_at_min=%s",
		base, url.QueryEscape(periodStart.Format(time.RFC3339)))
	if err := providers.GetJSON(ctx, a.client, providerID, abandonedURL, headers, &abandoned); err != nil {
		a.logger.Warn("checkouts report unavailable, omitting conversion", zap.Error(err))
	} else if orderCount+abandoned.Count > 0 {
		metrics.ConversionPct = models.Float64Ptr(100 * float64(orderCount) / float64(orderCount+abandoned.Count))
	}

	raw, _ := json.Marshal(orders)
	return &models.PulledData{
		ProviderID:  providerID,
		PulledAt:    now,
		PeriodStart: periodStart,
		PeriodEnd:   now,
		Raw:         raw,
		Metrics:     metrics,
	}, nil
}

// Revenue band thresholds over the trailing 30 days.
var revenueBands = []providers.Band{
	{Min: 50000, Score: 90},
	{Min: 15000, Score: 75},
	{Min: 5000, Score: 60},
	{Min: 1000, Score: 45},
	{Min: 0, Score: 25},
}

var repeatRateBands = []providers.Band{
	{Min: 40, Score: 90},
	{Min: 25, Score: 75},
	{Min: 15, Score: 60},
	{Min: 5, Score: 45},
	{Min: 0, Score: 30},
}

var fulfillmentBands = []providers.InverseBand{
	{Max: 1, Score: 95},
	{Max: 2, Score: 85},
	{Max: 4, Score: 70},
	{Max: 7, Score: 50},
	{Max: 14, Score: 35},
	{Max: 1e9, Score: 20},
}

// MapToPillars scores the revenue, retention, and operations pillars from the
// pull. Pure: uses only pulled and profile.
func (a *Adapter) MapToPillars(pulled *models.PulledData, profile *models.BusinessProfile) []models.PillarMetricResult {
	m := pulled.Metrics
	var results []models.PillarMetricResult

	if m.Revenue != nil {
		changes := []string{fmt.Sprintf("30-day revenue $%.0f across %d orders", *m.Revenue, valueOrZero(m.OrderCount))}
		if m.AvgOrderValue != nil {
			changes = append(changes, fmt.Sprintf("average order value $%.2f", *m.AvgOrderValue))
		}
		metrics := map[string]float64{"revenue_30d": *m.Revenue}
		if m.AvgOrderValue != nil {
			metrics["avg_order_value"] = *m.AvgOrderValue
		}
		results = append(results, models.PillarMetricResult{
			Pillar:  models.PillarRevenue,
			Score:   providers.BandScore(*m.Revenue, revenueBands),
			Metrics: metrics,
			Changes: changes,
		})
	}

	if m.RepeatRatePct != nil {
		results = append(results, models.PillarMetricResult{
			Pillar:  models.PillarRetention,
			Score:   providers.BandScore(*m.RepeatRatePct, repeatRateBands),
			Metrics: map[string]float64{"repeat_rate_pct": *m.RepeatRatePct},
			Changes: []string{fmt.Sprintf("%.1f%% of customers purchased more than once", *m.RepeatRatePct)},
		})
	}

	if m.FulfillmentDays != nil {
		results = append(results, models.PillarMetricResult{
			Pillar:  models.PillarOperations,
			Score:   providers.InverseBandScore(*m.FulfillmentDays, fulfillmentBands),
			Metrics: map[string]float64{"fulfillment_days": *m.FulfillmentDays},
			Changes: []string{fmt.Sprintf("orders fulfilled in %.1f days on average", *m.FulfillmentDays)},
		})
	}

	return results
}

// Disconnect revokes the token via the API-credential revocation endpoint.
// Best-effort; the orchestration layer logs failures and proceeds.
func (a *Adapter) Disconnect(ctx context.Context, conn *models.Connection) error {
	if conn.ExternalAccountID == "" {
		return nil
	}
	revokeURL := fmt.Sprintf("%s/admin/api_permissions/current.json", a.shopBase(conn.ExternalAccountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, revokeURL, nil)
	if err != nil {
		return providers.NewError(providers.StageRevoke, providerID, 0, "failed to build revoke request", err)
	}
	req.Header.Set("X-Shopify-Access-Token", conn.AccessToken)

	client := a.client
	if client == nil {
		client = &http.Client{Timeout: providers.DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return providers.NewError(providers.StageRevoke, providerID, 0, "revoke request failed", err)
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.NewError(providers.StageRevoke, providerID, resp.StatusCode, "revoke rejected", nil)
	}
	return nil
}

func (a *Adapter) shopBase(shop string) string {
	if a.apiBaseURL != "" {
		return a.apiBaseURL
	}
	return "https://" + shop
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
