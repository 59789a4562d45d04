// Package ganalytics integrates Google Analytics 4 properties for traffic and
// conversion data over a trailing 7-day window.
package ganalytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
)

const (
	providerID = "ganalytics"

	pullWindowDays = 7

	// weeksPerMonth normalizes the 7-day window to a monthly figure for
	// the shared profile fields.
	weeksPerMonth = 4.345

	defaultAuthBaseURL  = "https://accounts.google.com"
	defaultTokenBaseURL = "https://oauth2.googleapis.com"
	defaultAPIBaseURL   = "https://analyticsdata.googleapis.com"
)

// Adapter implements providers.Adapter and providers.TokenRefresher for GA4.
type Adapter struct {
	clientID     string
	clientSecret string
	authBaseURL  string
	tokenBaseURL string
	apiBaseURL   string
	client       *http.Client
	logger       *zap.Logger
}

// New creates a GA4 adapter from catalog settings.
func New(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (*Adapter, error) {
	if settings.ClientID == "" || settings.ClientSecret == "" {
		return nil, fmt.Errorf("ganalytics: client_id and client_secret are required")
	}
	authBase := settings.AuthBaseURL
	if authBase == "" {
		authBase = defaultAuthBaseURL
	}
	tokenBase := defaultTokenBaseURL
	apiBase := settings.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	} else {
		// Sandboxes and tests colocate the token endpoint with the API.
		tokenBase = settings.APIBaseURL
	}
	return &Adapter{
		clientID:     settings.ClientID,
		clientSecret: settings.ClientSecret,
		authBaseURL:  authBase,
		tokenBaseURL: tokenBase,
		apiBaseURL:   apiBase,
		client:       client,
		logger:       logger.Named("ganalytics"),
	}, nil
}

var (
	_ providers.Adapter        = (*Adapter)(nil)
	_ providers.TokenRefresher = (*Adapter)(nil)
)

// ID returns the provider identifier.
func (a *Adapter) ID() string { return providerID }

// AuthorizationURL builds the Google consent redirect. access_type=offline
// with forced consent so a refresh token is always issued.
func (a *Adapter) AuthorizationURL(state string, extra map[string]string) (string, error) {
	q := url.Values{}
	q.Set("client_id", a.clientID)
	q.Set("response_type", "code")
	q.Set("scope", "https://www.googleapis.com/auth/analytics.readonly")
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("redirect_uri", extra["redirect_uri"])
	q.Set("state", state)
	return a.authBaseURL + "/o/oauth2/v2/auth?" + q.Encode(), nil
}

// ExchangeCode swaps the callback code for tokens. Extra must carry
// "property_id", the GA4 property chosen for this connection.
func (a *Adapter) ExchangeCode(ctx context.Context, code string, extra map[string]string) (*providers.OAuthResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)
	form.Set("redirect_uri", extra["redirect_uri"])

	tok, err := providers.PostTokenForm(ctx, a.client, providerID, providers.StageExchange,
		a.tokenBaseURL+"/token", form, nil)
	if err != nil {
		return nil, err
	}

	return &providers.OAuthResult{
		AccessToken:       tok.AccessToken,
		RefreshToken:      tok.RefreshToken,
		ExpiresAt:         tok.ExpiresAt(time.Now()),
		ExternalAccountID: extra["property_id"],
		Scopes:            tok.ScopeList(),
	}, nil
}

// Refresh exchanges the stored refresh token for a new access token. Google
// does not rotate refresh tokens on refresh.
func (a *Adapter) Refresh(ctx context.Context, conn *models.Connection) (*providers.TokenUpdate, error) {
	if conn.RefreshToken == "" {
		return nil, apperrors.ErrMissingRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", conn.RefreshToken)
	form.Set("client_id", a.clientID)
	form.Set("client_secret", a.clientSecret)

	tok, err := providers.PostTokenForm(ctx, a.client, providerID, providers.StageRefresh,
		a.tokenBaseURL+"/token", form, nil)
	if err != nil {
		return nil, err
	}

	return &providers.TokenUpdate{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt(time.Now()),
	}, nil
}

type runReportResponse struct {
	Rows []struct {
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

// Pull runs one GA4 report (sessions + key events) for the trailing 7 days.
// The report is the primary and only source, so any failure fails the pull.
func (a *Adapter) Pull(ctx context.Context, conn *models.Connection) (*models.PulledData, error) {
	property := conn.ExternalAccountID
	if property == "" {
		return nil, providers.NewError(providers.StagePull, providerID, 0, "connection has no property id", nil)
	}

	now := time.Now().UTC()
	periodStart := now.AddDate(0, 0, -pullWindowDays)

	body := map[string]any{
		"dateRanges": []map[string]string{{
			"startDate": periodStart.Format("2006-01-02"),
			"endDate":   now.Format("2006-01-02"),
		}},
		"metrics": []map[string]string{
			{"name": "sessions"},
			{"name": "keyEvents"},
		},
	}

	var report runReportResponse
	headers := map[string]string{"Authorization": "Bearer " + conn.AccessToken}
	reportURL := fmt.Sprintf("%s/v1beta/properties/%s:runReport", a.apiBaseURL, url.PathEscape(property))
	if err := providers.PostJSON(ctx, a.client, providerID, reportURL, headers, body, &report); err != nil {
		return nil, err
	}

	metrics := models.PulledMetrics{}
	if len(report.Rows) > 0 && len(report.Rows[0].MetricValues) >= 2 {
		sessions, _ := strconv.ParseInt(report.Rows[0].MetricValues[0].Value, 10, 64)
		conversions, _ := strconv.ParseFloat(report.Rows[0].MetricValues[1].Value, 64)

		monthly := int64(float64(sessions) * weeksPerMonth)
		metrics.Traffic = &monthly
		if sessions > 0 {
			metrics.ConversionPct = models.Float64Ptr(100 * conversions / float64(sessions))
		}
	}

	raw, _ := json.Marshal(report)
	return &models.PulledData{
		ProviderID:  providerID,
		PulledAt:    now,
		PeriodStart: periodStart,
		PeriodEnd:   now,
		Raw:         raw,
		Metrics:     metrics,
	}, nil
}

var trafficBands = []providers.Band{
	{Min: 50000, Score: 90},
	{Min: 10000, Score: 75},
	{Min: 2500, Score: 60},
	{Min: 500, Score: 45},
	{Min: 0, Score: 25},
}

var conversionBands = []providers.Band{
	{Min: 5, Score: 90},
	{Min: 3, Score: 75},
	{Min: 1.5, Score: 60},
	{Min: 0.5, Score: 45},
	{Min: 0, Score: 25},
}

// MapToPillars scores the acquisition pillar from traffic and conversion.
// Pure.
func (a *Adapter) MapToPillars(pulled *models.PulledData, profile *models.BusinessProfile) []models.PillarMetricResult {
	m := pulled.Metrics
	if m.Traffic == nil {
		return nil
	}

	score := providers.BandScore(float64(*m.Traffic), trafficBands)
	metrics := map[string]float64{"monthly_sessions": float64(*m.Traffic)}
	changes := []string{fmt.Sprintf("traffic pacing %d sessions per month", *m.Traffic)}

	if m.ConversionPct != nil {
		// Average the traffic and conversion bands so thin-but-converting
		// sites aren't punished for volume alone.
		score = (score + providers.BandScore(*m.ConversionPct, conversionBands)) / 2
		metrics["conversion_pct"] = *m.ConversionPct
		changes = append(changes, fmt.Sprintf("%.2f%% of sessions converted", *m.ConversionPct))
	}

	return []models.PillarMetricResult{{
		Pillar:  models.PillarAcquisition,
		Score:   score,
		Metrics: metrics,
		Changes: changes,
	}}
}

// Disconnect revokes the Google token. Best-effort.
func (a *Adapter) Disconnect(ctx context.Context, conn *models.Connection) error {
	token := conn.RefreshToken
	if token == "" {
		token = conn.AccessToken
	}
	form := url.Values{}
	form.Set("token", token)
	return providers.PostForm(ctx, a.client, providerID, a.tokenBaseURL+"/revoke", form, nil)
}
