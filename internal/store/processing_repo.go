package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inboxpilot/scheduler/pkg/models"
)

// IncrementProcessing registers an attempt for (user, message) in one
// conditional upsert: a new key is inserted with attempts=1, an existing
// retryable row has its counter bumped, and a terminal (processed/dead) row
// is left untouched. The increment is persisted before the caller does any
// work, so attempts are never under-counted after a crash.
//
// Returns (row, true) when the attempt was recorded, (nil, false) when the
// row is terminal.
func (db *DB) IncrementProcessing(ctx context.Context, userID, messageID, threadID string) (*models.MessageProcessing, bool, error) {
	query := `
		INSERT INTO message_processing (user_id, message_id, thread_id, status, attempts, last_attempt_at, created_at)
		VALUES (?, ?, ?, 'pending', 1, ?, ?)
		ON CONFLICT(user_id, message_id) DO UPDATE SET
			attempts = message_processing.attempts + 1,
			status = 'pending',
			thread_id = CASE WHEN excluded.thread_id != '' THEN excluded.thread_id ELSE message_processing.thread_id END,
			last_attempt_at = excluded.last_attempt_at
		WHERE message_processing.status NOT IN ('processed', 'dead')
		RETURNING id, user_id, message_id, thread_id, status, attempts, last_error, last_attempt_at, created_at
	`
	now := time.Now()
	var p models.MessageProcessing
	err := db.QueryRowxContext(ctx, query, userID, messageID, threadID, now, now).StructScan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		// Conflict hit a terminal row; nothing was written.
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to increment processing: %w", err)
	}
	return &p, true, nil
}

// GetProcessing returns the ledger entry for (user, message)
func (db *DB) GetProcessing(ctx context.Context, userID, messageID string) (*models.MessageProcessing, error) {
	var p models.MessageProcessing
	query := `SELECT * FROM message_processing WHERE user_id = ? AND message_id = ?`
	err := db.GetContext(ctx, &p, query, userID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processing record: %w", err)
	}
	return &p, nil
}

// MarkProcessingProcessed sets the terminal success state. Idempotent; a
// dead row is never resurrected.
func (db *DB) MarkProcessingProcessed(ctx context.Context, userID, messageID string) error {
	query := `
		UPDATE message_processing SET status = 'processed', last_error = ''
		WHERE user_id = ? AND message_id = ? AND status != 'dead'
	`
	_, err := db.ExecContext(ctx, query, userID, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	return nil
}

// MarkProcessingFailed records the error and leaves the row retryable
func (db *DB) MarkProcessingFailed(ctx context.Context, userID, messageID, lastError string) error {
	query := `
		UPDATE message_processing SET status = 'failed', last_error = ?
		WHERE user_id = ? AND message_id = ? AND status NOT IN ('processed', 'dead')
	`
	_, err := db.ExecContext(ctx, query, lastError, userID, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return nil
}

// MarkProcessingDead sets the dead-letter terminal state
func (db *DB) MarkProcessingDead(ctx context.Context, userID, messageID string) error {
	query := `
		UPDATE message_processing SET status = 'dead'
		WHERE user_id = ? AND message_id = ? AND status != 'processed'
	`
	_, err := db.ExecContext(ctx, query, userID, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark dead: %w", err)
	}
	return nil
}
