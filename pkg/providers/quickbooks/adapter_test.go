package quickbooks

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
)

func newTestAdapter(t *testing.T, serverURL string) *Adapter {
	t.Helper()
	adapter, err := New(config.ProviderSettings{
		ClientID:     "qb-client",
		ClientSecret: "qb-secret",
		APIBaseURL:   serverURL,
	}, http.DefaultClient, zap.NewNop())
	require.NoError(t, err)
	return adapter
}

func expectedBasicAuth() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte("qb-client:qb-secret"))
}

func TestRefreshRotatesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, tokenPath, r.URL.Path)
		assert.Equal(t, expectedBasicAuth(), r.Header.Get("Authorization"))
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "old-refresh", r.FormValue("refresh_token"))
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	update, err := adapter.Refresh(context.Background(), &models.Connection{
		RefreshToken: "old-refresh",
	})
	require.NoError(t, err)

	assert.Equal(t, "new-access", update.AccessToken)
	assert.Equal(t, "new-refresh", update.RefreshToken)
	require.NotNil(t, update.ExpiresAt)
}

func TestRefreshWithoutTokenFails(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	_, err := adapter.Refresh(context.Background(), &models.Connection{})
	assert.ErrorIs(t, err, apperrors.ErrMissingRefreshToken)
}

func TestRefreshUpstreamRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	_, err := adapter.Refresh(context.Background(), &models.Connection{RefreshToken: "revoked"})
	require.Error(t, err)

	var provErr *providers.Error
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, providers.StageRefresh, provErr.Stage)
	assert.False(t, provErr.IsRetryable())
}

func TestExchangeCodeCapturesRealmID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, expectedBasicAuth(), r.Header.Get("Authorization"))
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"scope":"com.intuit.quickbooks.accounting"}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	result, err := adapter.ExchangeCode(context.Background(), "code", map[string]string{
		"realmId":      "realm-99",
		"redirect_uri": "https://app.example.com/callback",
	})
	require.NoError(t, err)

	assert.Equal(t, "at", result.AccessToken)
	assert.Equal(t, "rt", result.RefreshToken)
	assert.Equal(t, "realm-99", result.ExternalAccountID)
	require.NotNil(t, result.ExpiresAt)
}

func TestPullParsesProfitAndLoss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/v3/company/realm-99/reports/ProfitAndLoss")
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		w.Write([]byte(`{"Rows":{"Row":[
			{"group":"Income","Summary":{"ColData":[{"value":"Total Income"},{"value":"20000.00"}]}},
			{"group":"COGS","Summary":{"ColData":[{"value":"Total COGS"},{"value":"8000.00"}]}},
			{"group":"NetIncome","Summary":{"ColData":[{"value":"Net Income"},{"value":"3000.00"}]}}
		]}}`))
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	pulled, err := adapter.Pull(context.Background(), &models.Connection{
		AccessToken:       "access",
		ExternalAccountID: "realm-99",
	})
	require.NoError(t, err)

	m := pulled.Metrics
	require.NotNil(t, m.Revenue)
	assert.InDelta(t, 20000.0, *m.Revenue, 0.001)
	require.NotNil(t, m.GrossMarginPct)
	assert.InDelta(t, 60.0, *m.GrossMarginPct, 0.001)
	require.NotNil(t, m.NetProfitPct)
	assert.InDelta(t, 15.0, *m.NetProfitPct, 0.001)
}

func TestPullRequiresRealmID(t *testing.T) {
	adapter := newTestAdapter(t, "http://unused")
	_, err := adapter.Pull(context.Background(), &models.Connection{AccessToken: "t"})
	assert.Equal(t, providers.StagePull, providers.StageOf(err))
}

func TestMapToPillars(t *testing.T) {
	adapter := newTestAdapter(t, "")
	pulled := &models.PulledData{
		Metrics: models.PulledMetrics{
			Revenue:        models.Float64Ptr(20000),
			GrossMarginPct: models.Float64Ptr(60),
			NetProfitPct:   models.Float64Ptr(15),
		},
	}

	results := adapter.MapToPillars(pulled, &models.BusinessProfile{})
	require.Len(t, results, 2)

	byPillar := make(map[models.Pillar]models.PillarMetricResult)
	for _, r := range results {
		byPillar[r.Pillar] = r
	}
	assert.Equal(t, 90, byPillar[models.PillarProfitability].Score)
	assert.Equal(t, 75, byPillar[models.PillarRevenue].Score)
	assert.Contains(t, byPillar[models.PillarProfitability].Metrics, "net_profit_pct")
}
