package models

import "time"

// TokenScope selects which credential pair an operation needs.
type TokenScope string

const (
	ScopeMail     TokenScope = "mail"
	ScopeCalendar TokenScope = "calendar"
)

// UserAccount is a connected Google account.
type UserAccount struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// TokenCredential is the OAuth material for one (user, scope) pair.
// Only the token manager mutates these rows.
type TokenCredential struct {
	ID           int64      `db:"id"`
	UserID       string     `db:"user_id"`
	Scope        TokenScope `db:"scope"`
	AccessToken  string     `db:"access_token"`
	RefreshToken string     `db:"refresh_token"`
	ExpiresAt    time.Time  `db:"expires_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

// SyncState holds the push-subscription window and history cursor for a user.
type SyncState struct {
	UserID        string    `db:"user_id"`
	WatchExpiry   time.Time `db:"watch_expiry"`
	HistoryCursor uint64    `db:"history_cursor"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ScheduleProfile is a user's scheduling preferences, read-only input to
// the availability engine.
type ScheduleProfile struct {
	UserID            string `db:"user_id"`
	Timezone          string `db:"timezone"`            // IANA name
	WorkingHoursStart int    `db:"working_hours_start"` // hour of day, 0-23
	WorkingHoursEnd   int    `db:"working_hours_end"`
	BufferMinutes     int    `db:"buffer_minutes"`
	PreferredTimes    string `db:"preferred_times"` // JSON array of "HH:mm"
	AvoidTimes        string `db:"avoid_times"`     // JSON array of "HH:mm"
}
