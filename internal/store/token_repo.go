package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inboxpilot/scheduler/pkg/models"
)

// GetCredential returns the OAuth credential for a (user, scope) pair
func (db *DB) GetCredential(ctx context.Context, userID string, scope models.TokenScope) (*models.TokenCredential, error) {
	var cred models.TokenCredential
	query := `SELECT * FROM token_credentials WHERE user_id = ? AND scope = ?`
	err := db.GetContext(ctx, &cred, query, userID, scope)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &cred, nil
}

// SaveCredential upserts the (access, refresh, expiry) triple atomically.
// An empty refresh token keeps the stored one: providers omit the refresh
// token on plain refreshes and it must never be nulled out.
func (db *DB) SaveCredential(ctx context.Context, cred *models.TokenCredential) error {
	query := `
		INSERT INTO token_credentials (user_id, scope, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, scope) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = COALESCE(NULLIF(excluded.refresh_token, ''), token_credentials.refresh_token),
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query,
		cred.UserID,
		cred.Scope,
		cred.AccessToken,
		cred.RefreshToken,
		cred.ExpiresAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// GetSyncState returns the push-subscription state for a user
func (db *DB) GetSyncState(ctx context.Context, userID string) (*models.SyncState, error) {
	var s models.SyncState
	query := `SELECT * FROM sync_states WHERE user_id = ?`
	err := db.GetContext(ctx, &s, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return &s, nil
}

// SaveSyncState upserts the watch expiry and history cursor in one write,
// so a renewed subscription and its cursor can never be observed apart.
func (db *DB) SaveSyncState(ctx context.Context, s *models.SyncState) error {
	query := `
		INSERT INTO sync_states (user_id, watch_expiry, history_cursor, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			watch_expiry = excluded.watch_expiry,
			history_cursor = excluded.history_cursor,
			updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query, s.UserID, s.WatchExpiry, s.HistoryCursor, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// UpdateHistoryCursor advances the cursor without touching the watch expiry.
// The cursor is monotonic; stale redeliveries never move it backwards.
func (db *DB) UpdateHistoryCursor(ctx context.Context, userID string, cursor uint64) error {
	query := `UPDATE sync_states SET history_cursor = ?, updated_at = ? WHERE user_id = ? AND history_cursor < ?`
	_, err := db.ExecContext(ctx, query, cursor, time.Now(), userID, cursor)
	if err != nil {
		return fmt.Errorf("failed to update history cursor: %w", err)
	}
	return nil
}
