package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pulseiq/pulse-engine/pkg/apperrors"
	"github.com/pulseiq/pulse-engine/pkg/database"
	"github.com/pulseiq/pulse-engine/pkg/models"
)

// ConnectionRepository defines data access for provider connections.
// Token columns hold ciphertext; encryption is the service layer's concern.
type ConnectionRepository interface {
	// Create inserts a new connection. Returns apperrors.ErrConflict when
	// the user already has a connection for the provider.
	Create(ctx context.Context, conn *models.Connection) error

	// Upsert creates or replaces the connection for (userID, providerID).
	// Used by the OAuth callback so re-connecting refreshes credentials.
	Upsert(ctx context.Context, conn *models.Connection) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error)
	GetByUserAndProvider(ctx context.Context, userID uuid.UUID, providerID string) (*models.Connection, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error)

	// ListEligible returns connections whose status is connected or error
	// (errored connections are retried on each scheduled run). A nil
	// userID lists fleet-wide.
	ListEligible(ctx context.Context, userID *uuid.UUID) ([]*models.Connection, error)

	// BeginSync atomically moves the connection from connected or error to
	// syncing. Returns apperrors.ErrSyncInProgress when the compare-and-set
	// finds the row in any other state, so two concurrent triggers cannot
	// both proceed.
	BeginSync(ctx context.Context, id uuid.UUID) error

	// UpdateTokens persists refreshed credentials immediately. An empty
	// refreshToken keeps the existing one (providers that don't rotate).
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error

	// FinishSync records the attempt outcome and releases the syncing
	// state: success returns the connection to connected; failure moves it
	// to error with lastSyncError populated.
	FinishSync(ctx context.Context, id uuid.UUID, status models.SyncStatus, syncErr string, at time.Time) error

	Delete(ctx context.Context, id uuid.UUID) error
}

type connectionRepository struct {
	db *database.DB
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *database.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

var _ ConnectionRepository = (*connectionRepository)(nil)

const connectionColumns = `id, user_id, provider_id, status, access_token, refresh_token,
	token_expires_at, external_account_id, scopes, last_sync_at, last_sync_status,
	last_sync_error, created_at, updated_at`

func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query := `
		INSERT INTO connections (user_id, provider_id, status, access_token, refresh_token,
			token_expires_at, external_account_id, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		conn.UserID, conn.ProviderID, conn.Status, conn.AccessToken, conn.RefreshToken,
		conn.TokenExpiresAt, conn.ExternalAccountID, conn.Scopes, conn.CreatedAt, conn.UpdatedAt,
	).Scan(&conn.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) Upsert(ctx context.Context, conn *models.Connection) error {
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query := `
		INSERT INTO connections (user_id, provider_id, status, access_token, refresh_token,
			token_expires_at, external_account_id, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, provider_id) DO UPDATE
		SET status = EXCLUDED.status,
		    access_token = EXCLUDED.access_token,
		    refresh_token = EXCLUDED.refresh_token,
		    token_expires_at = EXCLUDED.token_expires_at,
		    external_account_id = EXCLUDED.external_account_id,
		    scopes = EXCLUDED.scopes,
		    last_sync_error = '',
		    updated_at = EXCLUDED.updated_at
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		conn.UserID, conn.ProviderID, conn.Status, conn.AccessToken, conn.RefreshToken,
		conn.TokenExpiresAt, conn.ExternalAccountID, conn.Scopes, conn.CreatedAt, conn.UpdatedAt,
	).Scan(&conn.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *connectionRepository) GetByUserAndProvider(ctx context.Context, userID uuid.UUID, providerID string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = $1 AND provider_id = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, userID, providerID))
}

func (r *connectionRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *connectionRepository) ListEligible(ctx context.Context, userID *uuid.UUID) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + `
		FROM connections
		WHERE status IN ('connected', 'error')`
	args := []any{}
	if userID != nil {
		query += ` AND user_id = $1`
		args = append(args, *userID)
	}
	query += ` ORDER BY user_id, created_at`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible connections: %w", err)
	}
	defer rows.Close()
	return r.scanMany(rows)
}

func (r *connectionRepository) BeginSync(ctx context.Context, id uuid.UUID) error {
	// Compare-and-set doubles as the advisory lock against overlapping
	// syncs for the same external account.
	tag, err := r.db.Exec(ctx, `
		UPDATE connections
		SET status = 'syncing', updated_at = now()
		WHERE id = $1 AND status IN ('connected', 'error')`, id)
	if err != nil {
		return fmt.Errorf("failed to begin sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrSyncInProgress
	}
	return nil
}

func (r *connectionRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt *time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE connections
		SET access_token = $2,
		    refresh_token = CASE WHEN $3 = '' THEN refresh_token ELSE $3 END,
		    token_expires_at = $4,
		    updated_at = now()
		WHERE id = $1`, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) FinishSync(ctx context.Context, id uuid.UUID, status models.SyncStatus, syncErr string, at time.Time) error {
	connStatus := models.ConnectionConnected
	if status == models.SyncFailed {
		connStatus = models.ConnectionError
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE connections
		SET status = $2,
		    last_sync_at = $3,
		    last_sync_status = $4,
		    last_sync_error = $5,
		    updated_at = now()
		WHERE id = $1`, id, connStatus, at, status, syncErr)
	if err != nil {
		return fmt.Errorf("failed to finish sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) scanOne(row pgx.Row) (*models.Connection, error) {
	var c models.Connection
	err := row.Scan(
		&c.ID, &c.UserID, &c.ProviderID, &c.Status, &c.AccessToken, &c.RefreshToken,
		&c.TokenExpiresAt, &c.ExternalAccountID, &c.Scopes, &c.LastSyncAt, &c.LastSyncStatus,
		&c.LastSyncError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &c, nil
}

func (r *connectionRepository) scanMany(rows pgx.Rows) ([]*models.Connection, error) {
	var conns []*models.Connection
	for rows.Next() {
		var c models.Connection
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.ProviderID, &c.Status, &c.AccessToken, &c.RefreshToken,
			&c.TokenExpiresAt, &c.ExternalAccountID, &c.Scopes, &c.LastSyncAt, &c.LastSyncStatus,
			&c.LastSyncError, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read connections: %w", err)
	}
	return conns, nil
}
