package models

import "time"

// ThreadStatus is the lifecycle state of an email thread.
type ThreadStatus string

const (
	ThreadPending              ThreadStatus = "pending"
	ThreadProcessing           ThreadStatus = "processing"
	ThreadAwaitingConfirmation ThreadStatus = "awaiting_confirmation"
	ThreadConfirmed            ThreadStatus = "confirmed"
	ThreadCancelled            ThreadStatus = "cancelled"
	ThreadFailed               ThreadStatus = "failed"
)

// Terminal reports whether no further scheduling work happens on the thread.
func (s ThreadStatus) Terminal() bool {
	return s == ThreadConfirmed || s == ThreadCancelled || s == ThreadFailed
}

// EmailThread tracks one external mail conversation per user.
// At most one row exists per (user_id, thread_id); writes go through upserts.
type EmailThread struct {
	ID            string       `db:"id"`
	UserID        string       `db:"user_id"`
	ThreadID      string       `db:"thread_id"` // provider thread id, opaque
	Subject       string       `db:"subject"`
	Participants  string       `db:"participants"` // JSON array of addresses
	Intent        *string      `db:"intent"`       // nil until classified
	Status        ThreadStatus `db:"status"`
	ProposedSlots string       `db:"proposed_slots"` // JSON array of Slot
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}
