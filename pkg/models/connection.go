package models

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus is the lifecycle state of a provider connection.
type ConnectionStatus string

const (
	ConnectionPending      ConnectionStatus = "pending"
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionSyncing      ConnectionStatus = "syncing"
	ConnectionError        ConnectionStatus = "error"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// SyncStatus is the outcome of the most recent sync attempt.
type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncFailed  SyncStatus = "failed"
	// SyncSkipped is reported in run summaries when another worker already
	// holds the connection; it is never persisted as a last sync status.
	SyncSkipped SyncStatus = "skipped"
)

// Connection is a persisted authorization relationship between one user and
// one external provider. Unique per (UserID, ProviderID).
//
// AccessToken and RefreshToken are stored encrypted at rest; the service layer
// decrypts them before handing the connection to a provider adapter.
type Connection struct {
	ID                uuid.UUID        `json:"id"`
	UserID            uuid.UUID        `json:"user_id"`
	ProviderID        string           `json:"provider_id"`
	Status            ConnectionStatus `json:"status"`
	AccessToken       string           `json:"-"`
	RefreshToken      string           `json:"-"` // empty when the provider does not issue one
	TokenExpiresAt    *time.Time       `json:"token_expires_at,omitempty"`
	ExternalAccountID string           `json:"external_account_id,omitempty"`
	Scopes            []string         `json:"scopes"`
	LastSyncAt        *time.Time       `json:"last_sync_at,omitempty"`
	LastSyncStatus    SyncStatus       `json:"last_sync_status,omitempty"`
	LastSyncError     string           `json:"last_sync_error,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TokenExpired reports whether the stored access token has expired as of now.
// Connections without an expiry never expire.
func (c *Connection) TokenExpired(now time.Time) bool {
	return c.TokenExpiresAt != nil && c.TokenExpiresAt.Before(now)
}
