package stripe

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
			DisplayName: "Stripe",
			Description: "Connect a Stripe account for processed volume, refunds, and fees",
			Category:    "payments",
		},
		Factory: func(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (providers.Adapter, error) {
			return New(settings, client, logger)
		},
	})
}
