package store

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxpilot/scheduler/pkg/models"
)

// UpsertMessage stores a message keyed by its provider message id. A second
// write with the same id overwrites the row, which is how the re-sync pass
// reconciles local copies with what the provider recorded.
func (db *DB) UpsertMessage(ctx context.Context, msg *models.EmailMessage) error {
	query := `
		INSERT INTO email_messages (message_id, thread_id, user_id, direction, from_addr, to_addrs, cc_addrs, subject, body_text, body_html, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			direction = excluded.direction,
			from_addr = excluded.from_addr,
			to_addrs = excluded.to_addrs,
			cc_addrs = excluded.cc_addrs,
			subject = excluded.subject,
			body_text = excluded.body_text,
			body_html = excluded.body_html,
			sent_at = excluded.sent_at
	`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		msg.MessageID,
		msg.ThreadID,
		msg.UserID,
		msg.Direction,
		msg.FromAddr,
		msg.ToAddrs,
		msg.CcAddrs,
		msg.Subject,
		msg.BodyText,
		msg.BodyHTML,
		msg.SentAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}
	return nil
}

// GetMessagesByThread returns all stored messages of a thread in sent order
func (db *DB) GetMessagesByThread(ctx context.Context, userID, threadID string) ([]*models.EmailMessage, error) {
	var msgs []*models.EmailMessage
	query := `SELECT * FROM email_messages WHERE user_id = ? AND thread_id = ? ORDER BY sent_at ASC`
	err := db.SelectContext(ctx, &msgs, query, userID, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return msgs, nil
}
