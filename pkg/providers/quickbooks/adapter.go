// Package quickbooks integrates QuickBooks Online. The profit-and-loss report
// is the single primary report; its failure fails the pull.
package quickbooks

import (
	"context"
	"encoding/base64"
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
	providerID = "quickbooks"

	pullWindowDays = 30

	defaultAuthBaseURL = "https://appcenter.intuit.com"
	defaultAPIBaseURL  = "https://quickbooks.api.intuit.com"

	tokenPath  = "/oauth2/v1/tokens/bearer"
	revokePath = "/oauth2/v1/tokens/revoke"
)

// Adapter implements providers.Adapter and providers.TokenRefresher for
// QuickBooks Online. Access tokens expire hourly; refresh tokens rotate.
type Adapter struct {
	clientID     string
	clientSecret string
	authBaseURL  string
	apiBaseURL   string
	// tokenBaseURL hosts the token and revoke endpoints; overridable for
	// tests via APIBaseURL since sandboxes colocate them.
	tokenBaseURL string
	client       *http.Client
	logger       *zap.Logger
}

// New creates a QuickBooks adapter from catalog settings.
func New(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (*Adapter, error) {
	if settings.ClientID == "" || settings.ClientSecret == "" {
		return nil, fmt.Errorf("quickbooks: client_id and client_secret are required")
	}
	authBase := settings.AuthBaseURL
	if authBase == "" {
		authBase = defaultAuthBaseURL
	}
	apiBase := settings.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	tokenBase := "https://oauth.platform.intuit.com"
	if settings.APIBaseURL != "" {
		tokenBase = settings.APIBaseURL
	}
	return &Adapter{
		clientID:     settings.ClientID,
		clientSecret: settings.ClientSecret,
		authBaseURL:  authBase,
		apiBaseURL:   apiBase,
		tokenBaseURL: tokenBase,
		client:       client,
		logger:       logger.Named("quickbooks"),
	}, nil
}

var (
	_ providers.Adapter        = (*Adapter)(nil)
	_ providers.TokenRefresher = (*Adapter)(nil)
)

// ID returns the provider identifier.
func (a *Adapter) ID() string { return providerID }

// AuthorizationURL builds the Intuit authorize redirect.
func (a *Adapter) AuthorizationURL(state string, extra map[string]string) (string, error) {
	q := url.Values{}
	q.Set("client_id", a.clientID)
	q.Set("response_type", "code")
	q.Set("scope", "com.intuit.quickbooks.accounting")
	q.Set("redirect_uri", extra["redirect_uri"])
	q.Set("state", state)
	return a.authBaseURL + "/connect/oauth2?" + q.Encode(), nil
}

// ExchangeCode swaps the callback code for tokens. The callback's realmId
// (passed through extra) identifies the company file.
func (a *Adapter) ExchangeCode(ctx context.Context, code string, extra map[string]string) (*providers.OAuthResult, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", extra["redirect_uri"])

	tok, err := providers.PostTokenForm(ctx, a.client, providerID, providers.StageExchange,
		a.tokenBaseURL+tokenPath, form, a.basicAuthHeader())
	if err != nil {
		return nil, err
	}

	return &providers.OAuthResult{
		AccessToken:       tok.AccessToken,
		RefreshToken:      tok.RefreshToken,
		ExpiresAt:         tok.ExpiresAt(time.Now()),
		ExternalAccountID: extra["realmId"],
		Scopes:            tok.ScopeList(),
	}, nil
}

// Refresh exchanges the stored refresh token for a new token pair.
func (a *Adapter) Refresh(ctx context.Context, conn *models.Connection) (*providers.TokenUpdate, error) {
	if conn.RefreshToken == "" {
		return nil, apperrors.ErrMissingRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", conn.RefreshToken)

	tok, err := providers.PostTokenForm(ctx, a.client, providerID, providers.StageRefresh,
		a.tokenBaseURL+tokenPath, form, a.basicAuthHeader())
	if err != nil {
		return nil, err
	}

	return &providers.TokenUpdate{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt(time.Now()),
	}, nil
}

// plReport mirrors the rows of the QuickBooks ProfitAndLoss summary we read.
type plReport struct {
	Rows struct {
		Row []struct {
			Group   string `json:"group"`
			Summary struct {
				ColData []struct {
					Value string `json:"value"`
				} `json:"ColData"`
			} `json:"Summary"`
		} `json:"Row"`
	} `json:"Rows"`
}

// Pull fetches the trailing-window profit-and-loss report.
func (a *Adapter) Pull(ctx context.Context, conn *models.Connection) (*models.PulledData, error) {
	realm := conn.ExternalAccountID
	if realm == "" {
		return nil, providers.NewError(providers.StagePull, providerID, 0, "connection has no realm id", nil)
	}

	now := time.Now().UTC()
	periodStart := now.AddDate(0, 0, -pullWindowDays)
	reportURL := fmt.Sprintf("%s/v3/company/%s/reports/ProfitAndLoss?start_date=%s&end_date=%s",
		a.apiBaseURL, url.PathEscape(realm),
		periodStart.Format("2006-01-02"), now.Format("2006-01-02"))

	var report plReport
	headers := map[string]string{"Authorization": "Bearer " + conn.AccessToken}
	if err := providers.GetJSON(ctx, a.client, providerID, reportURL, headers, &report); err != nil {
		return nil, err
	}

	var income, cogs, netIncome *float64
	for _, row := range report.Rows.Row {
		if len(row.Summary.ColData) < 2 {
			continue
		}
		v, err := strconv.ParseFloat(row.Summary.ColData[1].Value, 64)
		if err != nil {
			continue
		}
		switch row.Group {
		case "Income":
			income = models.Float64Ptr(v)
		case "COGS":
			cogs = models.Float64Ptr(v)
		case "NetIncome":
			netIncome = models.Float64Ptr(v)
		}
	}

	metrics := models.PulledMetrics{}
	if income != nil {
		metrics.Revenue = income
		if cogs != nil && *income > 0 {
			metrics.GrossMarginPct = models.Float64Ptr(100 * (*income - *cogs) / *income)
		}
		if netIncome != nil && *income > 0 {
			metrics.NetProfitPct = models.Float64Ptr(100 * *netIncome / *income)
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

var grossMarginBands = []providers.Band{
	{Min: 60, Score: 90},
	{Min: 40, Score: 75},
	{Min: 25, Score: 60},
	{Min: 10, Score: 40},
	{Min: -1e9, Score: 20},
}

var revenueBands = []providers.Band{
	{Min: 50000, Score: 90},
	{Min: 15000, Score: 75},
	{Min: 5000, Score: 60},
	{Min: 1000, Score: 45},
	{Min: 0, Score: 25},
}

// MapToPillars scores profitability (gross margin and net profit) and revenue
// from the books. Pure.
func (a *Adapter) MapToPillars(pulled *models.PulledData, profile *models.BusinessProfile) []models.PillarMetricResult {
	m := pulled.Metrics
	var results []models.PillarMetricResult

	if m.GrossMarginPct != nil {
		changes := []string{fmt.Sprintf("gross margin %.1f%% over the last %d days", *m.GrossMarginPct, pullWindowDays)}
		metrics := map[string]float64{"gross_margin_pct": *m.GrossMarginPct}
		if m.NetProfitPct != nil {
			metrics["net_profit_pct"] = *m.NetProfitPct
			changes = append(changes, fmt.Sprintf("net profit %.1f%% of revenue", *m.NetProfitPct))
		}
		results = append(results, models.PillarMetricResult{
			Pillar:  models.PillarProfitability,
			Score:   providers.BandScore(*m.GrossMarginPct, grossMarginBands),
			Metrics: metrics,
			Changes: changes,
		})
	}

	if m.Revenue != nil {
		results = append(results, models.PillarMetricResult{
			Pillar:  models.PillarRevenue,
			Score:   providers.BandScore(*m.Revenue, revenueBands),
			Metrics: map[string]float64{"revenue_30d": *m.Revenue},
			Changes: []string{fmt.Sprintf("booked income $%.0f over the last %d days", *m.Revenue, pullWindowDays)},
		})
	}

	return results
}

// Disconnect revokes the refresh token. Best-effort.
func (a *Adapter) Disconnect(ctx context.Context, conn *models.Connection) error {
	token := conn.RefreshToken
	if token == "" {
		token = conn.AccessToken
	}
	form := url.Values{}
	form.Set("token", token)
	return providers.PostForm(ctx, a.client, providerID, a.tokenBaseURL+revokePath, form, a.basicAuthHeader())
}

func (a *Adapter) basicAuthHeader() map[string]string {
	creds := base64.StdEncoding.EncodeToString([]byte(a.clientID + ":" + a.clientSecret))
	return map[string]string{"Authorization": "Basic " + creds}
}
