package models

import "time"

// ProcessingStatus is the state of one ledger entry.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "pending"
	ProcessingProcessed ProcessingStatus = "processed"
	ProcessingFailed    ProcessingStatus = "failed"
	ProcessingDead      ProcessingStatus = "dead"
)

// MessageProcessing is the per-(user, message) idempotency ledger entry that
// guards against duplicate handling of redelivered push notifications.
// Attempts only ever grows; processed and dead are absorbing.
type MessageProcessing struct {
	ID            int64            `db:"id"`
	UserID        string           `db:"user_id"`
	MessageID     string           `db:"message_id"`
	ThreadID      string           `db:"thread_id"`
	Status        ProcessingStatus `db:"status"`
	Attempts      int              `db:"attempts"`
	LastError     string           `db:"last_error"`
	LastAttemptAt time.Time        `db:"last_attempt_at"`
	CreatedAt     time.Time        `db:"created_at"`
}
