package ganalytics

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
			DisplayName: "Google Analytics 4",
			Description: "Connect a GA4 property for traffic and conversion data",
			Category:    "analytics",
		},
		Factory: func(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (providers.Adapter, error) {
			return New(settings, client, logger)
		},
	})
}
