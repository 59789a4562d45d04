// Package providers defines the adapter contract for external business
// platforms and the registry that decouples orchestration from concrete
// integrations.
package providers

import (
	"context"
	"time"

	"github.com/pulseiq/pulse-engine/pkg/models"
)

// OAuthResult is the outcome of an authorization-code exchange.
type OAuthResult struct {
	AccessToken       string
	RefreshToken      string // empty when the provider does not issue one
	ExpiresAt         *time.Time
	ExternalAccountID string
	Scopes            []string
}

// TokenUpdate carries refreshed credentials. RefreshToken is empty when the
// provider did not rotate it.
type TokenUpdate struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Adapter is implemented once per external platform. Pull performs I/O and
// can fail; MapToPillars is pure and must be deterministic for fixed inputs,
// so scoring logic stays unit-testable without mocking the network.
type Adapter interface {
	// ID returns the provider identifier, e.g. "shopify".
	ID() string

	// AuthorizationURL builds the OAuth redirect target embedding the
	// signed state token. Extra carries provider-specific parameters
	// (e.g. the shop domain for Shopify).
	AuthorizationURL(state string, extra map[string]string) (string, error)

	// ExchangeCode swaps an authorization code for tokens. Non-2xx
	// upstream responses surface as a *Error with StageExchange.
	ExchangeCode(ctx context.Context, code string, extra map[string]string) (*OAuthResult, error)

	// Pull issues read-only calls for the provider's trailing window and
	// never mutates upstream state. Secondary sub-report failures degrade
	// to omitted metrics; a failed primary report fails the pull with a
	// *Error carrying StagePull.
	Pull(ctx context.Context, conn *models.Connection) (*models.PulledData, error)

	// MapToPillars converts pulled data into per-pillar results. Pure:
	// no network, no clock beyond what pulled already captured. An empty
	// result means the provider has no opinion this period.
	MapToPillars(pulled *models.PulledData, profile *models.BusinessProfile) []models.PillarMetricResult

	// Disconnect revokes the upstream token best-effort. Failures are for
	// logging only and never block local disconnection.
	Disconnect(ctx context.Context, conn *models.Connection) error
}

// TokenRefresher is implemented by adapters whose providers issue expiring
// tokens. Adapters with non-expiring tokens simply don't implement it.
type TokenRefresher interface {
	// Refresh exchanges the stored refresh token for new credentials.
	// Returns apperrors.ErrMissingRefreshToken when none is stored, or a
	// *Error with StageRefresh on upstream rejection.
	Refresh(ctx context.Context, conn *models.Connection) (*TokenUpdate, error)
}
