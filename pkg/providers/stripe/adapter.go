// Package stripe integrates Stripe accounts via Stripe Connect OAuth.
// Charges are the primary report; refunds and payout fees degrade to omitted
// metrics when unavailable.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/logging"
	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
)

const (
	providerID = "stripe"

	pullWindowDays = 30

	defaultConnectBaseURL = "https://connect.stripe.com"
	defaultAPIBaseURL     = "https://api.stripe.com"
)

// Adapter implements providers.Adapter for Stripe. Connect access tokens do
// not expire, so the adapter does not implement TokenRefresher.
type Adapter struct {
	clientID       string
	secretKey      string // platform secret key, used for deauthorize
	connectBaseURL string
	apiBaseURL     string
	client         *http.Client
	logger         *zap.Logger
}

// New creates a Stripe adapter from catalog settings.
func New(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (*Adapter, error) {
	if settings.ClientID == "" || settings.ClientSecret == "" {
		return nil, fmt.Errorf("stripe: client_id and client_secret are required")
	}
	connectBase := settings.AuthBaseURL
	if connectBase == "" {
		connectBase = defaultConnectBaseURL
	}
	apiBase := settings.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	return &Adapter{
		clientID:       settings.ClientID,
		secretKey:      settings.ClientSecret,
		connectBaseURL: connectBase,
		apiBaseURL:     apiBase,
		client:         client,
		logger:         logger.Named("stripe"),
	}, nil
}

var _ providers.Adapter = (*Adapter)(nil)

// ID returns the provider identifier.
func (a *Adapter) ID() string { return providerID }

// AuthorizationURL builds the Stripe Connect authorize redirect.
func (a *Adapter) AuthorizationURL(state string, extra map[string]string) (string, error) {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", a.clientID)
	q.Set("scope", "read_only")
	q.Set("redirect_uri", extra["redirect_uri"])
	q.Set("state", state)
	return a.connectBaseURL + "/oauth/authorize?" + q.Encode(), nil
}

// ExchangeCode swaps the callback code for a connected-account token. The
// response carries stripe_user_id, which becomes the external account ID, so
// the exchange is decoded here rather than through the shared helper.
func (a *Adapter) ExchangeCode(ctx context.Context, code string, _ map[string]string) (*providers.OAuthResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_secret", a.secretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.connectBaseURL+"/oauth/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, providers.NewError(providers.StageExchange, providerID, 0, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := a.client
	if client == nil {
		client = &http.Client{Timeout: providers.DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, providers.NewError(providers.StageExchange, providerID, 0, "token request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, providers.NewError(providers.StageExchange, providerID, resp.StatusCode,
			logging.SanitizeUpstreamBody(string(body)), nil)
	}

	var tok struct {
		AccessToken  string `json:"access_token"`
		StripeUserID string `json:"stripe_user_id"`
		Scope        string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, providers.NewError(providers.StageExchange, providerID, 0, "failed to decode token response", err)
	}
	if tok.AccessToken == "" {
		return nil, providers.NewError(providers.StageExchange, providerID, 0, "token response missing access_token", nil)
	}

	return &providers.OAuthResult{
		AccessToken:       tok.AccessToken,
		ExternalAccountID: tok.StripeUserID,
		Scopes:            []string{tok.Scope},
	}, nil
}

type chargeList struct {
	Data []struct {
		Amount   int64  `json:"amount"` // minor units
		Status   string `json:"status"`
		Captured bool   `json:"captured"`
	} `json:"data"`
}

type refundList struct {
	Data []struct {
		Amount int64  `json:"amount"`
		Status string `json:"status"`
	} `json:"data"`
}

type balanceTxnList struct {
	Data []struct {
		Fee  int64  `json:"fee"`
		Type string `json:"type"`
	} `json:"data"`
}

// Pull fetches the trailing 30 days of charges (primary), refunds, and
// balance transactions (both degradable).
func (a *Adapter) Pull(ctx context.Context, conn *models.Connection) (*models.PulledData, error) {
	now := time.Now().UTC()
	periodStart := now.AddDate(0, 0, -pullWindowDays)
	headers := map[string]string{"Authorization": "Bearer " + conn.AccessToken}
	since := fmt.Sprintf("created[gte]=%d&limit=100", periodStart.Unix())

	var charges chargeList
	if err := providers.GetJSON(ctx, a.client, providerID,
		a.apiBaseURL+"/v1/charges?"+since, headers, &charges); err != nil {
		return nil, err
	}

	var gross float64
	var succeeded int64
	for _, c := range charges.Data {
		if c.Status == "succeeded" && c.Captured {
			gross += float64(c.Amount) / 100
			succeeded++
		}
	}

	metrics := models.PulledMetrics{
		Revenue:    models.Float64Ptr(gross),
		OrderCount: models.Int64Ptr(succeeded),
	}
	if succeeded > 0 {
		metrics.AvgOrderValue = models.Float64Ptr(gross / float64(succeeded))
	}

	var refunds refundList
	if err := providers.GetJSON(ctx, a.client, providerID,
		a.apiBaseURL+"/v1/refunds?"+since, headers, &refunds); err != nil {
		a.logger.Warn("refunds report unavailable, omitting refund rate", zap.Error(err))
	} else if gross > 0 {
		var refunded float64
		for _, r := range refunds.Data {
			if r.Status == "succeeded" {
				refunded += float64(r.Amount) / 100
			}
		}
		metrics.RefundRatePct = models.Float64Ptr(100 * refunded / gross)
	}

	var txns balanceTxnList
	if err := providers.GetJSON(ctx, a.client, providerID,
		a.apiBaseURL+"/v1/balance_transactions?"+since, headers, &txns); err != nil {
		a.logger.Warn("balance transactions unavailable, omitting fee margin", zap.Error(err))
	} else if gross > 0 {
		var fees float64
		for _, t := range txns.Data {
			fees += float64(t.Fee) / 100
		}
		metrics.NetProfitPct = models.Float64Ptr(100 * (gross - fees) / gross)
	}

	raw, _ := json.Marshal(charges)
	return &models.PulledData{
		ProviderID:  providerID,
		PulledAt:    now,
		PeriodStart: periodStart,
		PeriodEnd:   now,
		Raw:         raw,
		Metrics:     metrics,
	}, nil
}

var revenueBands = []providers.Band{
	{Min: 50000, Score: 90},
	{Min: 15000, Score: 75},
	{Min: 5000, Score: 60},
	{Min: 1000, Score: 45},
	{Min: 0, Score: 25},
}

var refundRateBands = []providers.InverseBand{
	{Max: 1, Score: 95},
	{Max: 3, Score: 80},
	{Max: 5, Score: 65},
	{Max: 10, Score: 45},
	{Max: 100, Score: 25},
}

// MapToPillars scores the revenue and profitability pillars. Pure.
func (a *Adapter) MapToPillars(pulled *models.PulledData, profile *models.BusinessProfile) []models.PillarMetricResult {
	m := pulled.Metrics
	var results []models.PillarMetricResult

	if m.Revenue != nil {
		results = append(results, models.PillarMetricResult{
			Pillar:  models.PillarRevenue,
			Score:   providers.BandScore(*m.Revenue, revenueBands),
			Metrics: map[string]float64{"revenue_30d": *m.Revenue},
			Changes: []string{fmt.Sprintf("30-day processed volume $%.0f over %d charges", *m.Revenue, valueOrZero(m.OrderCount))},
		})
	}

	if m.RefundRatePct != nil {
		score := providers.InverseBandScore(*m.RefundRatePct, refundRateBands)
		changes := []string{fmt.Sprintf("refund rate %.1f%% of processed volume", *m.RefundRatePct)}
		metrics := map[string]float64{"refund_rate_pct": *m.RefundRatePct}
		if m.NetProfitPct != nil {
			metrics["net_after_fees_pct"] = *m.NetProfitPct
			changes = append(changes, fmt.Sprintf("%.1f%% retained after processing fees", *m.NetProfitPct))
		}
		results = append(results, models.PillarMetricResult{
			Pillar:  models.PillarProfitability,
			Score:   score,
			Metrics: metrics,
			Changes: changes,
		})
	}

	return results
}

// Disconnect deauthorizes the connected account. Best-effort.
func (a *Adapter) Disconnect(ctx context.Context, conn *models.Connection) error {
	form := url.Values{}
	form.Set("client_id", a.clientID)
	form.Set("stripe_user_id", conn.ExternalAccountID)
	headers := map[string]string{"Authorization": "Bearer " + a.secretKey}
	return providers.PostForm(ctx, a.client, providerID, a.connectBaseURL+"/oauth/deauthorize", form, headers)
}

func valueOrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
