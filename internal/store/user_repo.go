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

// GetUserByEmail returns the account for a mailbox address
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.UserAccount, error) {
	var u models.UserAccount
	query := `SELECT * FROM users WHERE email = ?`
	err := db.GetContext(ctx, &u, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetUserByID returns an account by id
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.UserAccount, error) {
	var u models.UserAccount
	query := `SELECT * FROM users WHERE id = ?`
	err := db.GetContext(ctx, &u, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetAllUsers returns every connected account, used by the renewal sweep
func (db *DB) GetAllUsers(ctx context.Context) ([]*models.UserAccount, error) {
	var users []*models.UserAccount
	query := `SELECT * FROM users ORDER BY created_at ASC`
	err := db.SelectContext(ctx, &users, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

// UpsertUser inserts or updates an account keyed by email
func (db *DB) UpsertUser(ctx context.Context, u *models.UserAccount) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	query := `
		INSERT INTO users (id, email, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			updated_at = excluded.updated_at
		RETURNING id
	`
	now := time.Now()
	var id string
	if err := db.QueryRowxContext(ctx, query, u.ID, u.Email, u.Name, now, now).Scan(&id); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	u.ID = id
	return nil
}

// GetProfile returns the scheduling profile for a user, falling back to
// sensible defaults when none has been saved yet.
func (db *DB) GetProfile(ctx context.Context, userID string) (*models.ScheduleProfile, error) {
	var p models.ScheduleProfile
	query := `SELECT * FROM schedule_profiles WHERE user_id = ?`
	err := db.GetContext(ctx, &p, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ScheduleProfile{
			UserID:            userID,
			Timezone:          "UTC",
			WorkingHoursStart: 9,
			WorkingHoursEnd:   17,
			PreferredTimes:    "[]",
			AvoidTimes:        "[]",
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// SaveProfile upserts a scheduling profile
func (db *DB) SaveProfile(ctx context.Context, p *models.ScheduleProfile) error {
	query := `
		INSERT INTO schedule_profiles (user_id, timezone, working_hours_start, working_hours_end, buffer_minutes, preferred_times, avoid_times)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			timezone = excluded.timezone,
			working_hours_start = excluded.working_hours_start,
			working_hours_end = excluded.working_hours_end,
			buffer_minutes = excluded.buffer_minutes,
			preferred_times = excluded.preferred_times,
			avoid_times = excluded.avoid_times
	`
	_, err := db.ExecContext(ctx, query,
		p.UserID,
		p.Timezone,
		p.WorkingHoursStart,
		p.WorkingHoursEnd,
		p.BufferMinutes,
		p.PreferredTimes,
		p.AvoidTimes,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}
