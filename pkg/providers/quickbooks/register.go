package quickbooks

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
			DisplayName: "QuickBooks Online",
			Description: "Connect QuickBooks for revenue, margin, and profit from the books",
			Category:    "accounting",
		},
		Factory: func(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (providers.Adapter, error) {
			return New(settings, client, logger)
		},
	})
}
