package agent

import (
	"fmt"
	"time"

	"github.com/inboxpilot/scheduler/internal/availability"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// Tools exposes the availability engine to the agent runtime as callable
// tools with explicit request/response contracts. The engine itself has no
// awareness of being driven by an agent; this wrapper only translates shapes.
type Tools struct{}

// Request fields arrive over HTTP and are clamped to the same ranges the
// in-process synthesizer uses. The day cap bounds the search loop.
const (
	defaultToolDuration = 30
	defaultToolDays     = 5
	maxToolDays         = 31
)

// FindFreeSlotsRequest is the tool input for candidate generation.
type FindFreeSlotsRequest struct {
	RefTime           time.Time          `json:"ref_time"`
	Timezone          string             `json:"timezone"`
	Busy              []busyIntervalJSON `json:"busy"`
	DurationMinutes   int                `json:"duration_minutes"`
	WorkingHoursStart int                `json:"working_hours_start"`
	WorkingHoursEnd   int                `json:"working_hours_end"`
	DaysToCheck       int                `json:"days_to_check"`
}

// FindFreeSlots runs the deterministic candidate search in the requested
// timezone.
func (Tools) FindFreeSlots(req FindFreeSlotsRequest) ([]models.Slot, error) {
	loc, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", req.Timezone, err)
	}

	duration := req.DurationMinutes
	if duration <= 0 {
		duration = defaultToolDuration
	}
	days := req.DaysToCheck
	if days <= 0 {
		days = defaultToolDays
	}
	if days > maxToolDays {
		days = maxToolDays
	}

	busy := make([]availability.Interval, 0, len(req.Busy))
	for _, b := range req.Busy {
		busy = append(busy, availability.Interval{Start: b.Start, End: b.End})
	}

	return availability.FindFreeSlots(
		req.RefTime.In(loc),
		busy,
		duration,
		req.WorkingHoursStart,
		req.WorkingHoursEnd,
		days,
	), nil
}

// ScoreSlotRequest is the tool input for slot scoring.
type ScoreSlotRequest struct {
	Slot           models.Slot `json:"slot"`
	PreferredTimes []string    `json:"preferred_times,omitempty"`
	AvoidTimes     []string    `json:"avoid_times,omitempty"`
}

// ScoreSlot runs the deterministic scoring heuristic.
func (Tools) ScoreSlot(req ScoreSlotRequest) float64 {
	return availability.ScoreSlot(req.Slot, availability.Preferences{
		PreferredTimes: req.PreferredTimes,
		AvoidTimes:     req.AvoidTimes,
	})
}
