package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/inboxpilot/scheduler/internal/agent"
	"github.com/inboxpilot/scheduler/internal/availability"
	"github.com/inboxpilot/scheduler/internal/calendar"
	"github.com/inboxpilot/scheduler/internal/email"
	"github.com/inboxpilot/scheduler/internal/store"
	"github.com/inboxpilot/scheduler/pkg/models"
)

const (
	defaultDurationMinutes = 30
	maxProposedOptions     = 3
)

// handleSchedule searches for free slots, replies with up to three options
// and moves the thread to awaiting_confirmation. Finding nothing at all is
// still a handled outcome: an apology goes out and the thread is marked
// failed, not retried.
func (o *Orchestrator) handleSchedule(ctx context.Context, c *Clients, user *models.UserAccount, profile *models.ScheduleProfile, msg *email.Message, cls *agent.Classification) HandlerResult {
	slots, fallback, err := o.proposeSlots(ctx, c, profile, cls)
	if err != nil {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	intent := string(cls.Intent)
	thread := &models.EmailThread{
		UserID:       user.ID,
		ThreadID:     msg.ThreadID,
		Subject:      msg.Subject,
		Participants: participantsJSON(c, msg, cls.Participants),
		Intent:       &intent,
	}

	if len(slots) == 0 {
		thread.Status = models.ThreadFailed
		thread.ProposedSlots = "[]"
		if err := o.db.UpsertThread(ctx, thread); err != nil {
			return HandlerResult{ThreadID: msg.ThreadID, Err: err}
		}
		sentID, err := c.Mail.SendReply(ctx, []string{msg.From}, replySubject(msg.Subject), o.composer.Apology(), msg.ThreadID, msg.RFCMessageID)
		if err != nil {
			return HandlerResult{ThreadID: msg.ThreadID, Err: err}
		}
		o.logger.Info("no slots available, apology sent", "thread_id", msg.ThreadID)
		return HandlerResult{Success: true, ThreadID: msg.ThreadID, ResponseMessageID: sentID}
	}

	thread.Status = models.ThreadAwaitingConfirmation
	thread.ProposedSlots = encodeSlots(slots)
	if err := o.db.UpsertThread(ctx, thread); err != nil {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	body := o.composer.Proposal(slots, cls.RequestedDate, fallback)
	sentID, err := c.Mail.SendReply(ctx, []string{msg.From}, replySubject(msg.Subject), body, msg.ThreadID, msg.RFCMessageID)
	if err != nil {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}
	return HandlerResult{Success: true, ThreadID: msg.ThreadID, ResponseMessageID: sentID}
}

// handleReschedule re-runs the slot search for a thread that has not been
// confirmed yet. Confirmed, cancelled and failed threads are not
// reschedulable; those need a cancel followed by a fresh request.
func (o *Orchestrator) handleReschedule(ctx context.Context, c *Clients, user *models.UserAccount, profile *models.ScheduleProfile, msg *email.Message, cls *agent.Classification) HandlerResult {
	thread, err := o.db.GetThreadByProviderID(ctx, user.ID, msg.ThreadID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}
	if thread == nil || thread.Status.Terminal() {
		return HandlerResult{ThreadID: msg.ThreadID, Err: ErrNotReschedulable}
	}
	return o.handleSchedule(ctx, c, user, profile, msg, cls)
}

// handleConfirm books the slot the sender picked. The chosen index comes from
// the classifier, with the phrase detector as backup for replies like "the
// second one works". A stale or out-of-range selection produces no event and
// no reply; the failure surfaces through the ingestion ledger.
func (o *Orchestrator) handleConfirm(ctx context.Context, c *Clients, user *models.UserAccount, msg *email.Message, bodyText string, cls *agent.Classification) HandlerResult {
	thread, err := o.db.GetThreadByProviderID(ctx, user.ID, msg.ThreadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return HandlerResult{ThreadID: msg.ThreadID, Err: fmt.Errorf("%w: no proposal on record for thread", ErrInvalidSlotSelection)}
		}
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}
	if thread.Status == models.ThreadConfirmed {
		// Redelivery after a crash between booking and ledger update.
		o.logger.Info("thread already confirmed, skipping", "thread_id", msg.ThreadID)
		return HandlerResult{Success: true, ThreadID: msg.ThreadID}
	}
	if thread.Status.Terminal() {
		// Cancelled and failed threads hold no live proposal; booking off
		// one would resurrect a closed conversation.
		return HandlerResult{ThreadID: msg.ThreadID, Err: fmt.Errorf("%w: thread is %s", ErrInvalidSlotSelection, thread.Status)}
	}

	slots := decodeSlots(thread.ProposedSlots)

	var index int
	switch {
	case cls.ChosenSlotIndex != nil:
		index = *cls.ChosenSlotIndex
	default:
		detected, found := o.options.DetectChosenOption(bodyText)
		if !found {
			return HandlerResult{ThreadID: msg.ThreadID, Err: fmt.Errorf("%w: no option mentioned", ErrInvalidSlotSelection)}
		}
		index = detected
	}
	if index < 0 || index >= len(slots) {
		return HandlerResult{ThreadID: msg.ThreadID, Err: fmt.Errorf("%w: option %d of %d proposed", ErrInvalidSlotSelection, index+1, len(slots))}
	}
	slot := slots[index]

	title := thread.Subject
	if title == "" {
		title = "Meeting"
	}
	participants := decodeParticipants(thread.Participants)

	event, err := c.Calendar.CreateEvent(ctx, calendar.EventInput{
		Title:       title,
		Description: "Scheduled over email.",
		Attendees:   participants,
		Start:       slot.Start,
		End:         slot.End,
		Timezone:    slot.Timezone,
	})
	if err != nil {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	meeting := &models.Meeting{
		UserID:          user.ID,
		ThreadID:        &thread.ID,
		CalendarEventID: event.ID,
		Title:           title,
		Participants:    thread.Participants,
		StartAt:         slot.Start,
		EndAt:           slot.End,
		Timezone:        slot.Timezone,
		Status:          models.MeetingScheduled,
		Source:          models.SourceEmailThread,
	}
	err = o.db.CreateMeeting(ctx, meeting)
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	if err := o.db.UpdateThreadStatus(ctx, user.ID, msg.ThreadID, models.ThreadConfirmed); err != nil {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	sentID, err := c.Mail.SendReply(ctx, []string{msg.From}, replySubject(msg.Subject), o.composer.Confirmation(slot, title), msg.ThreadID, msg.RFCMessageID)
	if err != nil {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	o.logger.Info("meeting booked",
		"thread_id", msg.ThreadID,
		"event_id", event.ID,
		"start", slot.Start)
	return HandlerResult{Success: true, ThreadID: msg.ThreadID, ResponseMessageID: sentID}
}

// handleCancel removes the booked event from the calendar, marks the meeting
// row cancelled and moves the thread to its own cancelled state. The meeting
// row is kept for history.
func (o *Orchestrator) handleCancel(ctx context.Context, c *Clients, user *models.UserAccount, msg *email.Message) HandlerResult {
	thread, err := o.db.GetThreadByProviderID(ctx, user.ID, msg.ThreadID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			o.logger.Info("cancel for unknown thread, nothing to do", "thread_id", msg.ThreadID)
			return HandlerResult{Success: true, ThreadID: msg.ThreadID}
		}
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	title := ""
	meeting, err := o.db.GetLatestMeetingForThread(ctx, user.ID, thread.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}
	if meeting != nil && meeting.Status == models.MeetingScheduled {
		if err := c.Calendar.DeleteEvent(ctx, meeting.CalendarEventID); err != nil {
			return HandlerResult{ThreadID: msg.ThreadID, Err: err}
		}
		if err := o.db.UpdateMeetingStatus(ctx, meeting.ID, models.MeetingCancelled); err != nil {
			return HandlerResult{ThreadID: msg.ThreadID, Err: err}
		}
		title = meeting.Title
	}

	if err := o.db.UpdateThreadStatus(ctx, user.ID, msg.ThreadID, models.ThreadCancelled); err != nil {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	sentID, err := c.Mail.SendReply(ctx, []string{msg.From}, replySubject(msg.Subject), o.composer.Cancellation(title), msg.ThreadID, msg.RFCMessageID)
	if err != nil {
		return HandlerResult{ThreadID: msg.ThreadID, Err: err}
	}

	o.logger.Info("meeting cancelled", "thread_id", msg.ThreadID)
	return HandlerResult{Success: true, ThreadID: msg.ThreadID, ResponseMessageID: sentID}
}

// handleInfoRequest takes no scheduling action. The message is already
// persisted; a human answers it.
func (o *Orchestrator) handleInfoRequest(msg *email.Message) HandlerResult {
	o.logger.Info("info request, no action taken", "thread_id", msg.ThreadID, "message_id", msg.ID)
	return HandlerResult{Success: true, ThreadID: msg.ThreadID}
}

// proposeSlots runs the busy lookup and slot synthesis, then applies the
// requested-date constraint. When the requested date has nothing free, the
// unconstrained candidates are returned with fallback set so the reply can
// say so. The final list is ranked and trimmed to three.
func (o *Orchestrator) proposeSlots(ctx context.Context, c *Clients, profile *models.ScheduleProfile, cls *agent.Classification) ([]models.Slot, bool, error) {
	loc, err := time.LoadLocation(profile.Timezone)
	if err != nil {
		loc = time.UTC
	}
	ref := o.now().In(loc)

	duration := cls.DurationMinutes
	if duration <= 0 {
		duration = defaultDurationMinutes
	}

	windowEnd := ref.AddDate(0, 0, o.searchDays+1)
	busy, err := c.Calendar.BusyIntervals(ctx, ref, windowEnd)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query busy intervals: %w", err)
	}

	candidates, err := o.synthesizer.ProposeSlots(ctx, agent.ProposalRequest{
		Participants:    cls.Participants,
		DurationMinutes: duration,
		RequestedDate:   cls.RequestedDate,
		Profile:         profile,
		Busy:            busy,
		RefTime:         ref,
		DaysToCheck:     o.searchDays,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to propose slots: %w", err)
	}

	fallback := false
	if cls.RequestedDate != "" {
		onDate := slotsOnDate(candidates, cls.RequestedDate, loc)
		if len(onDate) > 0 {
			candidates = onDate
		} else if len(candidates) > 0 {
			fallback = true
		}
	}

	ranked := availability.Rank(candidates)
	if len(ranked) > maxProposedOptions {
		ranked = ranked[:maxProposedOptions]
	}
	return ranked, fallback, nil
}

func slotsOnDate(slots []models.Slot, date string, loc *time.Location) []models.Slot {
	var out []models.Slot
	for _, s := range slots {
		if s.Start.In(loc).Format("2006-01-02") == date {
			out = append(out, s)
		}
	}
	return out
}
