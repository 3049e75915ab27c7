package models

import "time"

// MessageDirection distinguishes inbound mail from replies we sent.
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// EmailMessage is one message belonging to an EmailThread. Rows are
// immutable except for re-sync overwrite keyed by the provider message id.
type EmailMessage struct {
	ID        int64            `db:"id"`
	MessageID string           `db:"message_id"` // provider message id, unique
	ThreadID  string           `db:"thread_id"`  // provider thread id
	UserID    string           `db:"user_id"`
	Direction MessageDirection `db:"direction"`
	FromAddr  string           `db:"from_addr"`
	ToAddrs   string           `db:"to_addrs"` // comma-separated
	CcAddrs   string           `db:"cc_addrs"`
	Subject   string           `db:"subject"`
	BodyText  string           `db:"body_text"`
	BodyHTML  string           `db:"body_html"`
	SentAt    time.Time        `db:"sent_at"`
	CreatedAt time.Time        `db:"created_at"`
}
