package services

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/providers"
)

// buildAdapter constructs the adapter for a provider ID, requiring both a
// registry entry and an enabled catalog entry. Either miss is a configuration
// error, not a transient one.
func buildAdapter(catalog config.ProviderCatalog, providerID string, client *http.Client, logger *zap.Logger) (providers.Adapter, error) {
	settings, ok := catalog[providerID]
	if !ok || !settings.Enabled {
		return nil, fmt.Errorf("%w: %q not enabled in provider catalog",
			apperrors.ErrProviderNotRegistered, providerID)
	}
	return providers.Build(providerID, settings, client, logger)
}
