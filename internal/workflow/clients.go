package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/inboxpilot/scheduler/internal/availability"
	"github.com/inboxpilot/scheduler/internal/calendar"
	"github.com/inboxpilot/scheduler/internal/email"
	"github.com/inboxpilot/scheduler/internal/token"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// MailClient is the slice of the Gmail client the workflow depends on.
type MailClient interface {
	FetchChangesSince(ctx context.Context, cursor uint64) ([]email.ChangedMessage, uint64, error)
	GetMessage(ctx context.Context, messageID string) (*email.Message, error)
	GetThread(ctx context.Context, threadID string) ([]*email.Message, error)
	SendReply(ctx context.Context, to []string, subject, body, threadID, inReplyTo string) (string, error)
	IsSelf(addr string) bool
}

// CalendarClient is the slice of the calendar client the workflow depends on.
type CalendarClient interface {
	BusyIntervals(ctx context.Context, from, to time.Time) ([]availability.Interval, error)
	CreateEvent(ctx context.Context, in calendar.EventInput) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, eventID string) error
}

// Clients bundles the per-user external clients.
type Clients struct {
	Mail     MailClient
	Calendar CalendarClient
}

// ClientFactory builds authenticated clients for one user. Splitting this
// out keeps the orchestrator testable with in-memory fakes.
type ClientFactory interface {
	ForUser(ctx context.Context, user *models.UserAccount) (*Clients, error)
}

// GoogleClientFactory builds real Gmail and Calendar clients backed by the
// token manager.
type GoogleClientFactory struct {
	tokens *token.Manager
	logger *slog.Logger
}

// NewGoogleClientFactory creates the production client factory.
func NewGoogleClientFactory(tokens *token.Manager, logger *slog.Logger) *GoogleClientFactory {
	return &GoogleClientFactory{tokens: tokens, logger: logger}
}

// ForUser resolves valid tokens for both scopes and builds the clients.
func (f *GoogleClientFactory) ForUser(ctx context.Context, user *models.UserAccount) (*Clients, error) {
	mailToken, err := f.tokens.ValidToken(ctx, user.ID, models.ScopeMail)
	if err != nil {
		return nil, err
	}
	calToken, err := f.tokens.ValidToken(ctx, user.ID, models.ScopeCalendar)
	if err != nil {
		return nil, err
	}

	mailClient, err := email.NewClient(ctx, mailToken, user.Email, f.logger)
	if err != nil {
		return nil, err
	}
	calClient, err := calendar.NewClient(ctx, calToken, f.logger)
	if err != nil {
		return nil, err
	}

	return &Clients{Mail: mailClient, Calendar: calClient}, nil
}
