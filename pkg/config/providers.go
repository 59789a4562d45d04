package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderSettings holds the OAuth client configuration for one provider.
// ClientSecret values in providers.yaml should use ${ENV_VAR} references;
// the file is environment-expanded before parsing.
type ProviderSettings struct {
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthBaseURL  string `yaml:"auth_base_url,omitempty"` // override for tests/sandboxes
	APIBaseURL   string `yaml:"api_base_url,omitempty"`  // override for tests/sandboxes
}

// ProviderCatalog maps provider IDs to their settings.
type ProviderCatalog map[string]ProviderSettings

// LoadProviders reads the provider catalog from path.
func LoadProviders(path string) (ProviderCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var file struct {
		Providers ProviderCatalog `yaml:"providers"`
	}
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("failed to parse provider catalog: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("provider catalog %s lists no providers", path)
	}

	return file.Providers, nil
}

// Enabled returns the IDs of all enabled providers.
func (c ProviderCatalog) EnabledIDs() []string {
	ids := make([]string, 0, len(c))
	for id, s := range c {
		if s.Enabled {
			ids = append(ids, id)
		}
	}
	return ids
}
