// Package services contains the orchestration layer: OAuth connection
// lifecycle, the sync pipeline, and score recomputation.
package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/crypto"
	"github.com/pulseiq/pulse-engine/pkg/logging"
	"github.com/pulseiq/pulse-engine/pkg/models"
	"github.com/pulseiq/pulse-engine/pkg/providers"
	"github.com/pulseiq/pulse-engine/pkg/repositories"
)

// ConnectService manages the OAuth connection lifecycle for provider
// integrations.
type ConnectService interface {
	// AvailableProviders lists registered providers that are enabled in the
	// catalog, for discovery surfaces.
	AvailableProviders() []providers.Info

	// BeginConnect starts an OAuth flow and returns the authorization URL
	// to redirect the user to. Extra carries provider-specific parameters
	// such as the Shopify shop domain.
	BeginConnect(ctx context.Context, userID uuid.UUID, providerID string, extra map[string]string) (string, error)

	// HandleCallback completes the flow: verifies the state token,
	// exchanges the code, encrypts the credentials, and upserts the
	// connection as connected.
	HandleCallback(ctx context.Context, code, state string, extra map[string]string) (*models.Connection, error)

	// Disconnect revokes the upstream token best-effort and removes the
	// local connection. Revocation failures never block removal.
	Disconnect(ctx context.Context, userID uuid.UUID, providerID string) error
}

type connectService struct {
	connections repositories.ConnectionRepository
	catalog     config.ProviderCatalog
	oauth       config.OAuthConfig
	baseURL     string
	cipher      *crypto.TokenCipher
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewConnectService creates a new connect service.
func NewConnectService(
	connections repositories.ConnectionRepository,
	catalog config.ProviderCatalog,
	oauth config.OAuthConfig,
	baseURL string,
	cipher *crypto.TokenCipher,
	logger *zap.Logger,
) ConnectService {
	return &connectService{
		connections: connections,
		catalog:     catalog,
		oauth:       oauth,
		baseURL:     baseURL,
		cipher:      cipher,
		httpClient:  &http.Client{Timeout: providers.DefaultTimeout},
		logger:      logger.Named("connect-service"),
	}
}

var _ ConnectService = (*connectService)(nil)

func (s *connectService) AvailableProviders() []providers.Info {
	var available []providers.Info
	for _, info := range providers.RegisteredProviders() {
		if settings, ok := s.catalog[info.ID]; ok && settings.Enabled {
			available = append(available, info)
		}
	}
	return available
}

func (s *connectService) BeginConnect(ctx context.Context, userID uuid.UUID, providerID string, extra map[string]string) (string, error) {
	adapter, err := buildAdapter(s.catalog, providerID, s.httpClient, s.logger)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(s.oauth.StateTTLMinutes) * time.Minute
	state, err := providers.SignState(s.oauth.StateSecret, userID, providerID, ttl)
	if err != nil {
		return "", err
	}

	authURL, err := adapter.AuthorizationURL(state, s.withRedirectURI(providerID, extra))
	if err != nil {
		return "", fmt.Errorf("failed to build authorization URL: %w", err)
	}

	s.logger.Info("OAuth flow started",
		zap.String("user_id", userID.String()),
		zap.String("provider_id", providerID))
	return authURL, nil
}

func (s *connectService) HandleCallback(ctx context.Context, code, state string, extra map[string]string) (*models.Connection, error) {
	userID, providerID, err := providers.VerifyState(s.oauth.StateSecret, state)
	if err != nil {
		return nil, err
	}

	adapter, err := buildAdapter(s.catalog, providerID, s.httpClient, s.logger)
	if err != nil {
		return nil, err
	}

	result, err := adapter.ExchangeCode(ctx, code, s.withRedirectURI(providerID, extra))
	if err != nil {
		return nil, err
	}

	encAccess, err := s.cipher.Encrypt(result.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := s.cipher.Encrypt(result.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	conn := &models.Connection{
		UserID:            userID,
		ProviderID:        providerID,
		Status:            models.ConnectionConnected,
		AccessToken:       encAccess,
		RefreshToken:      encRefresh,
		TokenExpiresAt:    result.ExpiresAt,
		ExternalAccountID: result.ExternalAccountID,
		Scopes:            result.Scopes,
	}
	if err := s.connections.Upsert(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("Provider connected",
		zap.String("user_id", userID.String()),
		zap.String("provider_id", providerID),
		zap.String("connection_id", conn.ID.String()))
	return conn, nil
}

func (s *connectService) Disconnect(ctx context.Context, userID uuid.UUID, providerID string) error {
	conn, err := s.connections.GetByUserAndProvider(ctx, userID, providerID)
	if err != nil {
		return err
	}

	// Revocation is best-effort: a dead upstream must not trap the user in
	// a connected state.
	if adapter, err := buildAdapter(s.catalog, providerID, s.httpClient, s.logger); err == nil {
		work := *conn
		if work.AccessToken, err = s.cipher.Decrypt(conn.AccessToken); err == nil {
			work.RefreshToken, _ = s.cipher.Decrypt(conn.RefreshToken)
			if err := adapter.Disconnect(ctx, &work); err != nil {
				s.logger.Warn("Upstream token revocation failed",
					zap.String("provider_id", providerID),
					zap.String("connection_id", conn.ID.String()),
					zap.String("error", logging.SanitizeError(err)))
			}
		}
	}

	if err := s.connections.Delete(ctx, conn.ID); err != nil {
		return err
	}

	s.logger.Info("Provider disconnected",
		zap.String("user_id", userID.String()),
		zap.String("provider_id", providerID))
	return nil
}

// withRedirectURI copies extra and adds the callback URL all adapters embed in
// their authorization and exchange requests.
func (s *connectService) withRedirectURI(providerID string, extra map[string]string) map[string]string {
	merged := make(map[string]string, len(extra)+1)
	for k, v := range extra {
		merged[k] = v
	}
	merged["redirect_uri"] = fmt.Sprintf("%s/integrations/callback/%s", s.baseURL, providerID)
	return merged
}
