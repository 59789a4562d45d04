package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/crypto"
	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
)

const (
	testStateSecret = "connect-test-secret"
	testBaseURL     = "https://app.example.com"
)

type connectHarness struct {
	svc    ConnectService
	conns  *fakeConnRepo
	cipher *crypto.TokenCipher
}

func newConnectHarness() *connectHarness {
	cipher, err := crypto.NewTokenCipher("unit-test-passphrase")
	if err != nil {
		panic(err)
	}
	conns := newFakeConnRepo()
	svc := NewConnectService(
		conns,
		config.ProviderCatalog{
			fakeProviderID: {Enabled: true, ClientID: "id", ClientSecret: "secret"},
		},
		config.OAuthConfig{StateSecret: testStateSecret, StateTTLMinutes: 10},
		testBaseURL,
		cipher,
		zap.NewNop(),
	)
	return &connectHarness{svc: svc, conns: conns, cipher: cipher}
}

func TestBeginConnectBuildsAuthorizationURL(t *testing.T) {
	h := newConnectHarness()
	currentAdapter = &fakeAdapter{}
	userID := uuid.New()

	authURL, err := h.svc.BeginConnect(context.Background(), userID, fakeProviderID, nil)
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, testBaseURL+"/integrations/callback/"+fakeProviderID,
		parsed.Query().Get("redirect_uri"))

	// The embedded state round-trips back to the initiating user.
	gotUser, gotProvider, err := providers.VerifyState(testStateSecret, parsed.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, fakeProviderID, gotProvider)
}

func TestBeginConnectRejectsUnknownProvider(t *testing.T) {
	h := newConnectHarness()

	_, err := h.svc.BeginConnect(context.Background(), uuid.New(), "ghost", nil)
	assert.ErrorIs(t, err, apperrors.ErrProviderNotRegistered)
}

func TestHandleCallbackStoresEncryptedConnection(t *testing.T) {
	h := newConnectHarness()
	expiry := time.Now().Add(time.Hour)
	currentAdapter = &fakeAdapter{
		exchangeResult: &providers.OAuthResult{
			AccessToken:       "plain-access",
			RefreshToken:      "plain-refresh",
			ExpiresAt:         &expiry,
			ExternalAccountID: "acct-42",
			Scopes:            []string{"read"},
		},
	}
	userID := uuid.New()
	state, err := providers.SignState(testStateSecret, userID, fakeProviderID, 10*time.Minute)
	require.NoError(t, err)

	conn, err := h.svc.HandleCallback(context.Background(), "auth-code", state, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionConnected, conn.Status)
	assert.Equal(t, "acct-42", conn.ExternalAccountID)

	// Tokens are stored as ciphertext, never plaintext.
	stored := h.conns.get(conn.ID)
	require.NotNil(t, stored)
	assert.NotEqual(t, "plain-access", stored.AccessToken)
	access, err := h.cipher.Decrypt(stored.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "plain-access", access)
	refresh, err := h.cipher.Decrypt(stored.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "plain-refresh", refresh)
}

func TestHandleCallbackReconnectReplacesCredentials(t *testing.T) {
	h := newConnectHarness()
	currentAdapter = &fakeAdapter{
		exchangeResult: &providers.OAuthResult{AccessToken: "first-token"},
	}
	userID := uuid.New()
	state, err := providers.SignState(testStateSecret, userID, fakeProviderID, 10*time.Minute)
	require.NoError(t, err)

	first, err := h.svc.HandleCallback(context.Background(), "code-1", state, nil)
	require.NoError(t, err)

	currentAdapter = &fakeAdapter{
		exchangeResult: &providers.OAuthResult{AccessToken: "second-token"},
	}
	second, err := h.svc.HandleCallback(context.Background(), "code-2", state, nil)
	require.NoError(t, err)

	// Same logical connection, refreshed credentials.
	assert.Equal(t, first.ID, second.ID)
	access, err := h.cipher.Decrypt(h.conns.get(second.ID).AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "second-token", access)
}

func TestHandleCallbackRejectsInvalidState(t *testing.T) {
	h := newConnectHarness()
	currentAdapter = &fakeAdapter{}

	_, err := h.svc.HandleCallback(context.Background(), "code", "tampered-state", nil)
	assert.ErrorIs(t, err, apperrors.ErrStateInvalid)
}

func TestHandleCallbackPropagatesExchangeError(t *testing.T) {
	h := newConnectHarness()
	currentAdapter = &fakeAdapter{
		exchangeErr: providers.NewError(providers.StageExchange, fakeProviderID, 400, "bad code", nil),
	}
	state, err := providers.SignState(testStateSecret, uuid.New(), fakeProviderID, 10*time.Minute)
	require.NoError(t, err)

	_, err = h.svc.HandleCallback(context.Background(), "expired-code", state, nil)
	require.Error(t, err)
	assert.Equal(t, providers.StageExchange, providers.StageOf(err))
}

func TestDisconnectRemovesConnectionDespiteRevocationFailure(t *testing.T) {
	h := newConnectHarness()
	adapter := &fakeAdapter{disconnectErr: assert.AnError}
	currentAdapter = adapter
	userID := uuid.New()

	encAccess, err := h.cipher.Encrypt("tok")
	require.NoError(t, err)
	conn := h.conns.add(&models.Connection{
		UserID:      userID,
		ProviderID:  fakeProviderID,
		Status:      models.ConnectionConnected,
		AccessToken: encAccess,
	})

	require.NoError(t, h.svc.Disconnect(context.Background(), userID, fakeProviderID))
	assert.Equal(t, 1, adapter.disconnected)
	assert.Nil(t, h.conns.get(conn.ID))
}

func TestDisconnectUnknownConnection(t *testing.T) {
	h := newConnectHarness()

	err := h.svc.Disconnect(context.Background(), uuid.New(), fakeProviderID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAvailableProvidersFiltersCatalog(t *testing.T) {
	cipher, err := crypto.NewTokenCipher("unit-test-passphrase")
	require.NoError(t, err)

	enabled := NewConnectService(newFakeConnRepo(),
		config.ProviderCatalog{fakeProviderID: {Enabled: true}},
		config.OAuthConfig{StateSecret: testStateSecret}, testBaseURL, cipher, zap.NewNop())
	disabled := NewConnectService(newFakeConnRepo(),
		config.ProviderCatalog{fakeProviderID: {Enabled: false}},
		config.OAuthConfig{StateSecret: testStateSecret}, testBaseURL, cipher, zap.NewNop())

	ids := func(infos []providers.Info) []string {
		var out []string
		for _, i := range infos {
			out = append(out, i.ID)
		}
		return out
	}

	assert.Contains(t, ids(enabled.AvailableProviders()), fakeProviderID)
	assert.NotContains(t, ids(disabled.AvailableProviders()), fakeProviderID)
}
