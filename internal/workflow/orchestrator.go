// Package workflow drives an email thread from receipt to a terminal
// scheduling outcome. One inbound message is classified, dispatched to an
// intent handler, and the thread, meeting and message records are persisted
// along the way.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/inboxpilot/scheduler/internal/agent"
	"github.com/inboxpilot/scheduler/internal/compose"
	"github.com/inboxpilot/scheduler/internal/email"
	"github.com/inboxpilot/scheduler/internal/notify"
	"github.com/inboxpilot/scheduler/internal/parser"
	"github.com/inboxpilot/scheduler/internal/store"
	"github.com/inboxpilot/scheduler/internal/token"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// ErrInvalidSlotSelection means a confirm referenced a missing or
// out-of-range proposed slot. No event or meeting is created.
var ErrInvalidSlotSelection = errors.New("invalid slot selection")

// ErrNotReschedulable means the thread is already confirmed or terminal;
// only threads awaiting confirmation (or earlier) can be rescheduled.
var ErrNotReschedulable = errors.New("thread cannot be rescheduled")

// HandlerResult is what an intent handler reports back.
type HandlerResult struct {
	Success           bool
	ThreadID          string
	ResponseMessageID string
	Err               error
}

// Orchestrator coordinates classification, slot search, calendar writes and
// replies for inbound messages.
type Orchestrator struct {
	db          *store.DB
	clients     ClientFactory
	classifier  agent.Classifier
	synthesizer agent.SlotSynthesizer
	htmlParser  *parser.HTMLParser
	options     *parser.OptionDetector
	composer    *compose.Composer
	notifier    notify.Notifier
	logger      *slog.Logger
	searchDays  int
	now         func() time.Time
}

// Deps are the orchestrator's constructor dependencies.
type Deps struct {
	DB          *store.DB
	Clients     ClientFactory
	Classifier  agent.Classifier
	Synthesizer agent.SlotSynthesizer
	HTMLParser  *parser.HTMLParser
	Options     *parser.OptionDetector
	Composer    *compose.Composer
	Notifier    notify.Notifier
	Logger      *slog.Logger
	SearchDays  int
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	searchDays := deps.SearchDays
	if searchDays <= 0 {
		searchDays = 5
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Orchestrator{
		db:          deps.DB,
		clients:     deps.Clients,
		classifier:  deps.Classifier,
		synthesizer: deps.Synthesizer,
		htmlParser:  deps.HTMLParser,
		options:     deps.Options,
		composer:    deps.Composer,
		notifier:    notifier,
		logger:      deps.Logger.With("component", "workflow"),
		searchDays:  searchDays,
		now:         time.Now,
	}
}

// ProcessMessage handles one admitted inbound message end to end. The
// returned error feeds the ingestion ledger: nil marks the message
// processed, non-nil leaves it retryable for the next redelivery.
func (o *Orchestrator) ProcessMessage(ctx context.Context, user *models.UserAccount, changed email.ChangedMessage) error {
	clients, err := o.clients.ForUser(ctx, user)
	if err != nil {
		if errors.Is(err, token.ErrNotConnected) || errors.Is(err, token.ErrRefreshFailed) {
			// Reconnect prompts go out-of-band, never as auto-reply email.
			o.notifier.ReconnectRequired(ctx, user.Email, err)
		}
		return err
	}

	msg, err := clients.Mail.GetMessage(ctx, changed.MessageID)
	if err != nil {
		return err
	}
	if clients.Mail.IsSelf(msg.From) {
		o.logger.Debug("skipping self-sent message", "message_id", msg.ID)
		return nil
	}

	bodyText := msg.BodyText
	if bodyText == "" && msg.BodyHTML != "" {
		parsed, err := o.htmlParser.Parse(msg.BodyHTML)
		if err != nil {
			o.logger.Warn("failed to parse HTML body", "message_id", msg.ID, "error", err)
		} else {
			bodyText = parsed
		}
	}

	// Store the inbound message early; losing the record must not block
	// handling.
	o.persistMessage(ctx, user, msg, models.DirectionInbound)

	cls, err := o.classifier.Classify(ctx, msg.Subject, bodyText)
	if err != nil {
		return fmt.Errorf("failed to classify message: %w", err)
	}

	profile, err := o.db.GetProfile(ctx, user.ID)
	if err != nil {
		return err
	}

	result := o.dispatch(ctx, clients, user, profile, msg, bodyText, cls)

	// Canonical re-sync: stored messages should match what the provider
	// recorded, including headers we could not predict locally. Failures
	// here are warnings, never handler failures - the reply already went out.
	o.syncThread(ctx, clients, user, msg.ThreadID)

	if result.Err != nil {
		o.logger.Warn("handler failed",
			"intent", cls.Intent,
			"thread_id", msg.ThreadID,
			"message_id", msg.ID,
			"error", result.Err)
		return result.Err
	}

	o.logger.Info("message handled",
		"intent", cls.Intent,
		"thread_id", msg.ThreadID,
		"response_message_id", result.ResponseMessageID)
	return nil
}

// dispatch routes a classified message to its intent handler. The switch is
// exhaustive over the closed intent set.
func (o *Orchestrator) dispatch(ctx context.Context, c *Clients, user *models.UserAccount, profile *models.ScheduleProfile, msg *email.Message, bodyText string, cls *agent.Classification) HandlerResult {
	switch cls.Intent {
	case models.IntentSchedule:
		return o.handleSchedule(ctx, c, user, profile, msg, cls)
	case models.IntentReschedule:
		return o.handleReschedule(ctx, c, user, profile, msg, cls)
	case models.IntentCancel:
		return o.handleCancel(ctx, c, user, msg)
	case models.IntentConfirm:
		return o.handleConfirm(ctx, c, user, msg, bodyText, cls)
	case models.IntentInfoRequest:
		return o.handleInfoRequest(msg)
	default:
		return HandlerResult{ThreadID: msg.ThreadID, Err: fmt.Errorf("unknown intent %q", cls.Intent)}
	}
}

// persistMessage best-effort upserts one message row.
func (o *Orchestrator) persistMessage(ctx context.Context, user *models.UserAccount, msg *email.Message, direction models.MessageDirection) {
	record := &models.EmailMessage{
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		UserID:    user.ID,
		Direction: direction,
		FromAddr:  msg.From,
		ToAddrs:   strings.Join(msg.To, ", "),
		CcAddrs:   strings.Join(msg.Cc, ", "),
		Subject:   msg.Subject,
		BodyText:  msg.BodyText,
		BodyHTML:  msg.BodyHTML,
		SentAt:    msg.SentAt,
	}
	if err := o.db.UpsertMessage(ctx, record); err != nil {
		o.logger.Warn("failed to persist message", "message_id", msg.ID, "error", err)
	}
}

// syncThread re-fetches the whole thread from the provider and overwrites
// local copies by provider message id.
func (o *Orchestrator) syncThread(ctx context.Context, c *Clients, user *models.UserAccount, threadID string) {
	msgs, err := c.Mail.GetThread(ctx, threadID)
	if err != nil {
		o.logger.Warn("failed to sync thread", "thread_id", threadID, "error", err)
		return
	}
	for _, m := range msgs {
		direction := models.DirectionInbound
		if c.Mail.IsSelf(m.From) {
			direction = models.DirectionOutbound
		}
		o.persistMessage(ctx, user, m, direction)
	}
}

// participantsJSON builds the stored participant set: the sender plus
// everyone the classifier identified, deduplicated, excluding ourselves.
func participantsJSON(c *Clients, msg *email.Message, extra []string) string {
	seen := make(map[string]bool)
	var participants []string
	add := func(addr string) {
		addr = strings.TrimSpace(strings.ToLower(addr))
		if addr == "" || seen[addr] || c.Mail.IsSelf(addr) {
			return
		}
		seen[addr] = true
		participants = append(participants, addr)
	}
	add(msg.From)
	for _, a := range msg.To {
		add(a)
	}
	for _, a := range msg.Cc {
		add(a)
	}
	for _, a := range extra {
		add(a)
	}
	data, _ := json.Marshal(participants)
	return string(data)
}

func decodeParticipants(s string) []string {
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func decodeSlots(s string) []models.Slot {
	var out []models.Slot
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func encodeSlots(slots []models.Slot) string {
	data, _ := json.Marshal(slots)
	return string(data)
}

func replySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}
