package providers

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/config"
)

// Info describes a registered provider for discovery surfaces.
type Info struct {
	ID          string `json:"id"`          // "shopify", "stripe", ...
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Category    string `json:"category"` // "ecommerce", "payments", "accounting", "analytics"
}

// Registration contains provider info plus the factory that builds an adapter
// from catalog settings.
type Registration struct {
	Info    Info
	Factory func(settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (Adapter, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each provider subpackage's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.ID] = reg
}

// RegisteredProviders returns info for all registered providers.
func RegisteredProviders() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Info, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// IsRegistered checks whether a provider ID is available.
func IsRegistered(id string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[id]
	return ok
}

// Build constructs an adapter for the given provider ID. An unknown ID is a
// configuration error (apperrors.ErrProviderNotRegistered), not a transient
// failure.
func Build(id string, settings config.ProviderSettings, client *http.Client, logger *zap.Logger) (Adapter, error) {
	registryMu.RLock()
	reg, ok := registry[id]
	registryMu.RUnlock()

	if !ok {
		return nil, apperrors.ErrProviderNotRegistered
	}
	return reg.Factory(settings, client, logger)
}
