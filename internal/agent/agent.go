// Package agent defines the contracts for the LLM collaborators: the
// email-intent classifier and the slot-narration agent. Both are external,
// non-deterministic services consumed as black boxes returning typed data;
// the deterministic availability engine stays independent of them.
package agent

import (
	"context"
	"time"

	"github.com/inboxpilot/scheduler/internal/availability"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// Classification is the typed result of classifying an inbound email.
type Classification struct {
	Intent          models.Intent `json:"intent"`
	Participants    []string      `json:"participants,omitempty"`
	ProposedTimes   []time.Time   `json:"proposed_times,omitempty"`
	DurationMinutes int           `json:"duration_minutes,omitempty"`
	ChosenSlotIndex *int          `json:"chosen_slot_index,omitempty"`
	RequestedDate   string        `json:"requested_date,omitempty"` // "2006-01-02", empty when none
	Urgency         string        `json:"urgency,omitempty"`
}

// Classifier decides what an inbound email is asking for.
type Classifier interface {
	Classify(ctx context.Context, subject, body string) (*Classification, error)
}

// ProposalRequest carries everything a synthesizer needs to narrate slots.
type ProposalRequest struct {
	Participants    []string
	DurationMinutes int
	RequestedDate   string // "2006-01-02", empty for unconstrained search
	Profile         *models.ScheduleProfile
	Busy            []availability.Interval
	RefTime         time.Time
	DaysToCheck     int
}

// SlotSynthesizer proposes scored, narrated meeting slots.
type SlotSynthesizer interface {
	ProposeSlots(ctx context.Context, req ProposalRequest) ([]models.Slot, error)
}
