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

// CreateMeeting creates a meeting guarded by the unique calendar event id.
// A duplicate event id returns ErrAlreadyExists instead of a second row,
// which is the backstop against double-booking under redelivery.
func (db *DB) CreateMeeting(ctx context.Context, m *models.Meeting) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	query := `
		INSERT OR IGNORE INTO meetings (id, user_id, thread_id, calendar_event_id, title, description, participants, start_at, end_at, timezone, status, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		m.ID,
		m.UserID,
		m.ThreadID,
		m.CalendarEventID,
		m.Title,
		m.Description,
		m.Participants,
		m.StartAt,
		m.EndAt,
		m.Timezone,
		m.Status,
		m.Source,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create meeting: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// GetMeetingByEventID returns the meeting for a calendar event id
func (db *DB) GetMeetingByEventID(ctx context.Context, eventID string) (*models.Meeting, error) {
	var m models.Meeting
	query := `SELECT * FROM meetings WHERE calendar_event_id = ?`
	err := db.GetContext(ctx, &m, query, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return &m, nil
}

// GetLatestMeetingForThread returns the most recently created meeting of a thread
func (db *DB) GetLatestMeetingForThread(ctx context.Context, userID, threadID string) (*models.Meeting, error) {
	var m models.Meeting
	query := `SELECT * FROM meetings WHERE user_id = ? AND thread_id = ? ORDER BY created_at DESC LIMIT 1`
	err := db.GetContext(ctx, &m, query, userID, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting: %w", err)
	}
	return &m, nil
}

// UpdateMeetingStatus updates the status of a meeting
func (db *DB) UpdateMeetingStatus(ctx context.Context, id string, status models.MeetingStatus) error {
	query := `UPDATE meetings SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update meeting status: %w", err)
	}
	return nil
}
