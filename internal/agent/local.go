package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxpilot/scheduler/internal/availability"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// LocalSynthesizer proposes slots straight from the availability engine,
// without calling the agent service. It is the fallback when no agent
// endpoint is configured and the deterministic base the narration agent
// builds on.
type LocalSynthesizer struct{}

// ProposeSlots generates, scores and annotates candidates.
func (LocalSynthesizer) ProposeSlots(ctx context.Context, req ProposalRequest) ([]models.Slot, error) {
	loc, err := time.LoadLocation(req.Profile.Timezone)
	if err != nil {
		loc = time.UTC
	}

	days := req.DaysToCheck
	if days <= 0 {
		days = 5
	}
	duration := req.DurationMinutes
	if duration <= 0 {
		duration = 30
	}

	slots := availability.FindFreeSlots(
		req.RefTime.In(loc),
		req.Busy,
		duration,
		req.Profile.WorkingHoursStart,
		req.Profile.WorkingHoursEnd,
		days,
	)

	prefs := availability.PreferencesFromProfile(req.Profile)
	for i := range slots {
		slots[i].Score = availability.ScoreSlot(slots[i], prefs)
		slots[i].Reason = describeSlot(slots[i])
	}
	return slots, nil
}

func describeSlot(s models.Slot) string {
	local := s.Start.In(s.Location())
	hour := local.Hour()
	switch {
	case hour >= 9 && hour < 11:
		return fmt.Sprintf("%s morning, typically a focused window", local.Weekday())
	case hour >= 13 && hour < 15:
		return fmt.Sprintf("%s early afternoon", local.Weekday())
	default:
		return fmt.Sprintf("%s at %s", local.Weekday(), local.Format("15:04"))
	}
}
