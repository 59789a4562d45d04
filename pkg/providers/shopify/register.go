package shopify

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/config"
	"github.com/pulseiq/pulse-engine/pkg/providers"
)

func init() {
	providers.Register(providers.Registration{
		Info: providers.Info{
			ID:          providerID,
			DisplayName: "Shopify",
			Description: "Connect a Shopify storefront for orders, customers, and fulfillment data",
			Category:    "ecommerce",
		},
		Factory: func(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (providers.Adapter, error) {
			return New(settings, client, logger)
		},
	})
}
