package models

import "time"

// MeetingStatus is the lifecycle state of a meeting.
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingCancelled MeetingStatus = "cancelled"
)

// MeetingSource records where a meeting originated.
type MeetingSource string

const (
	SourceEmailThread MeetingSource = "email_thread"
	SourceAgent       MeetingSource = "agent"
	SourceManual      MeetingSource = "manual"
)

// Meeting is a scheduled calendar event, optionally linked to an email
// thread. At most one row exists per calendar event id; cancelled meetings
// are kept, never hard-deleted.
type Meeting struct {
	ID              string        `db:"id"`
	UserID          string        `db:"user_id"`
	ThreadID        *string       `db:"thread_id"` // nil for standalone meetings
	CalendarEventID string        `db:"calendar_event_id"`
	Title           string        `db:"title"`
	Description     string        `db:"description"`
	Participants    string        `db:"participants"` // JSON array of addresses
	StartAt         time.Time     `db:"start_at"`
	EndAt           time.Time     `db:"end_at"`
	Timezone        string        `db:"timezone"`
	Status          MeetingStatus `db:"status"`
	Source          MeetingSource `db:"source"`
	CreatedAt       time.Time     `db:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"`
}
