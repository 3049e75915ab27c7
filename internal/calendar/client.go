// Package calendar wraps the Google Calendar API for busy lookups and
// event create/update/delete.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/oauth2"
	calapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/inboxpilot/scheduler/internal/availability"
)

// EventInput are the fields we set on a calendar event.
type EventInput struct {
	Title       string
	Description string
	Attendees   []string
	Start       time.Time
	End         time.Time
	Timezone    string // IANA name
}

// Event is a created or updated calendar event.
type Event struct {
	ID       string
	HTMLLink string
}

// Client is a Calendar API client bound to one user's primary calendar.
type Client struct {
	svc    *calapi.Service
	logger *slog.Logger
}

// NewClient builds a client from a valid access token.
func NewClient(ctx context.Context, accessToken string, logger *slog.Logger) (*Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := calapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &Client{svc: svc, logger: logger.With("component", "calendar_client")}, nil
}

// BusyIntervals queries free/busy for the primary calendar over a range.
func (c *Client) BusyIntervals(ctx context.Context, from, to time.Time) ([]availability.Interval, error) {
	resp, err := c.svc.Freebusy.Query(&calapi.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   []*calapi.FreeBusyRequestItem{{Id: "primary"}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query free/busy: %w", err)
	}

	var busy []availability.Interval
	for _, cal := range resp.Calendars {
		for _, period := range cal.Busy {
			start, err := time.Parse(time.RFC3339, period.Start)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, period.End)
			if err != nil {
				continue
			}
			busy = append(busy, availability.Interval{Start: start, End: end})
		}
	}
	return busy, nil
}

// CreateEvent creates an event on the primary calendar with bounded retry.
func (c *Client) CreateEvent(ctx context.Context, in EventInput) (*Event, error) {
	ev := &calapi.Event{
		Summary:     in.Title,
		Description: in.Description,
		Start: &calapi.EventDateTime{
			DateTime: in.Start.Format(time.RFC3339),
			TimeZone: in.Timezone,
		},
		End: &calapi.EventDateTime{
			DateTime: in.End.Format(time.RFC3339),
			TimeZone: in.Timezone,
		},
	}
	for _, a := range in.Attendees {
		ev.Attendees = append(ev.Attendees, &calapi.EventAttendee{Email: a})
	}

	var created *Event
	err := retry.Do(
		func() error {
			resp, err := c.svc.Events.Insert("primary", ev).Context(ctx).Do()
			if err != nil {
				c.logger.Warn("calendar insert failed, will retry", "title", in.Title, "error", err)
				return err
			}
			created = &Event{ID: resp.Id, HTMLLink: resp.HtmlLink}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	c.logger.Info("event created", "event_id", created.ID, "title", in.Title)
	return created, nil
}

// UpdateEvent patches an existing event.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, in EventInput) (*Event, error) {
	ev := &calapi.Event{
		Summary:     in.Title,
		Description: in.Description,
		Start: &calapi.EventDateTime{
			DateTime: in.Start.Format(time.RFC3339),
			TimeZone: in.Timezone,
		},
		End: &calapi.EventDateTime{
			DateTime: in.End.Format(time.RFC3339),
			TimeZone: in.Timezone,
		},
	}

	var updated *Event
	err := retry.Do(
		func() error {
			resp, err := c.svc.Events.Patch("primary", eventID, ev).Context(ctx).Do()
			if err != nil {
				c.logger.Warn("calendar patch failed, will retry", "event_id", eventID, "error", err)
				return err
			}
			updated = &Event{ID: resp.Id, HTMLLink: resp.HtmlLink}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	return updated, nil
}

// DeleteEvent removes an event from the primary calendar.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	err := retry.Do(
		func() error {
			return c.svc.Events.Delete("primary", eventID).Context(ctx).Do()
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	c.logger.Info("event deleted", "event_id", eventID)
	return nil
}
