package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for pulse-engine.
// Values come from config.yaml with environment variable overrides; secrets
// (database password, token encryption key, state secret, provider client
// secrets) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // set at load time, not from config

	// BaseURL is the externally visible base URL used to build OAuth
	// redirect URIs (e.g. https://app.pulseiq.io).
	BaseURL string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`

	Database DatabaseConfig `yaml:"database"`
	Sync     SyncConfig     `yaml:"sync"`
	OAuth    OAuthConfig    `yaml:"oauth"`

	// ProvidersFile points at the provider catalog (client IDs, endpoints).
	ProvidersFile string `yaml:"providers_file" env:"PROVIDERS_FILE" env-default:"providers.yaml"`

	// MigrationsPath is the directory holding SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// CredentialsKey encrypts OAuth tokens at rest. 32-byte base64 key,
	// generate with: openssl rand -base64 32. Startup fails without it.
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"pulse"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"pulse_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// SyncConfig holds sync pipeline tuning.
type SyncConfig struct {
	// PullTimeoutSeconds bounds each upstream pull/refresh call.
	PullTimeoutSeconds int `yaml:"pull_timeout_seconds" env:"SYNC_PULL_TIMEOUT_SECONDS" env-default:"30"`
	// FleetConcurrency bounds how many users sync in parallel during a
	// fleet run. Connections for one user always run sequentially.
	FleetConcurrency int `yaml:"fleet_concurrency" env:"SYNC_FLEET_CONCURRENCY" env-default:"8"`
	// ScheduleIntervalMinutes is the fleet scheduler cadence. 0 disables it.
	ScheduleIntervalMinutes int `yaml:"schedule_interval_minutes" env:"SYNC_SCHEDULE_INTERVAL_MINUTES" env-default:"360"`
}

// OAuthConfig holds settings shared by all provider OAuth flows.
type OAuthConfig struct {
	// StateSecret signs the OAuth state token. Secret - env only.
	StateSecret string `yaml:"-" env:"OAUTH_STATE_SECRET"`
	// StateTTLMinutes is how long a state token stays valid; callbacks
	// carrying older state are rejected as replay.
	StateTTLMinutes int `yaml:"state_ttl_minutes" env:"OAUTH_STATE_TTL_MINUTES" env-default:"10"`
}

// Load reads configuration from config.yaml with environment overrides.
// The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if cfg.CredentialsKey == "" {
		return nil, fmt.Errorf("CREDENTIALS_KEY must be set")
	}
	if cfg.OAuth.StateSecret == "" {
		return nil, fmt.Errorf("OAUTH_STATE_SECRET must be set")
	}

	return cfg, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
