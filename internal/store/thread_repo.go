package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/inboxpilot/scheduler/pkg/models"
)

// UpsertThread inserts or updates a thread keyed by (user_id, thread_id).
// The existing row id is preserved on conflict; t.ID is set to the stored id.
func (db *DB) UpsertThread(ctx context.Context, t *models.EmailThread) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `
		INSERT INTO email_threads (id, user_id, thread_id, subject, participants, intent, status, proposed_slots, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, thread_id) DO UPDATE SET
			subject = excluded.subject,
			participants = excluded.participants,
			intent = excluded.intent,
			status = excluded.status,
			proposed_slots = excluded.proposed_slots,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	var id string
	err := db.QueryRowxContext(ctx, query,
		t.ID,
		t.UserID,
		t.ThreadID,
		t.Subject,
		t.Participants,
		t.Intent,
		t.Status,
		t.ProposedSlots,
		now,
		now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to upsert thread: %w", err)
	}

	t.ID = id
	t.UpdatedAt = now
	return nil
}

// GetThreadByProviderID returns the thread for a (user, provider thread id) pair
func (db *DB) GetThreadByProviderID(ctx context.Context, userID, threadID string) (*models.EmailThread, error) {
	var t models.EmailThread
	query := `SELECT * FROM email_threads WHERE user_id = ? AND thread_id = ?`
	err := db.GetContext(ctx, &t, query, userID, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	return &t, nil
}

// UpdateThreadStatus updates only the status of a thread
func (db *DB) UpdateThreadStatus(ctx context.Context, userID, threadID string, status models.ThreadStatus) error {
	query := `UPDATE email_threads SET status = ?, updated_at = ? WHERE user_id = ? AND thread_id = ?`
	_, err := db.ExecContext(ctx, query, status, time.Now(), userID, threadID)
	if err != nil {
		return fmt.Errorf("failed to update thread status: %w", err)
	}
	return nil
}

// UpdateProposedSlots overwrites the proposed-slots list and status together
func (db *DB) UpdateProposedSlots(ctx context.Context, userID, threadID, slotsJSON string, status models.ThreadStatus) error {
	query := `UPDATE email_threads SET proposed_slots = ?, status = ?, updated_at = ? WHERE user_id = ? AND thread_id = ?`
	_, err := db.ExecContext(ctx, query, slotsJSON, status, time.Now(), userID, threadID)
	if err != nil {
		return fmt.Errorf("failed to update proposed slots: %w", err)
	}
	return nil
}
