// Package availability implements the deterministic free-slot search and
// slot-scoring heuristics. Everything here is pure: no network, no database,
// no clock reads. The agent-facing tool adapter lives elsewhere.
package availability

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/inboxpilot/scheduler/pkg/models"
)

const (
	stepMinutes = 30
	maxSlots    = 10
)

// Interval is a busy [start, end) range on the calendar.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Preferences are the scoring inputs derived from a schedule profile.
type Preferences struct {
	PreferredTimes []string // local "HH:mm" start times to favor
	AvoidTimes     []string // local "HH:mm" start times to avoid
}

// PreferencesFromProfile decodes the JSON time lists of a profile.
func PreferencesFromProfile(p *models.ScheduleProfile) Preferences {
	var prefs Preferences
	// Malformed JSON just yields empty lists; scoring degrades gracefully.
	_ = json.Unmarshal([]byte(p.PreferredTimes), &prefs.PreferredTimes)
	_ = json.Unmarshal([]byte(p.AvoidTimes), &prefs.AvoidTimes)
	return prefs
}

// FindFreeSlots generates non-conflicting candidate slots. Starting from the
// local midnight of ref for each of daysToCheck days, candidates of the given
// duration are laid out on a 30-minute grid between workingHoursStart and
// workingHoursEnd (no wraparound past the end of a day). Candidates touching
// any busy interval are dropped. Results are chronological and hard-capped at
// 10; callers wanting more must widen daysToCheck.
func FindFreeSlots(ref time.Time, busy []Interval, durationMinutes, workingHoursStart, workingHoursEnd, daysToCheck int) []models.Slot {
	loc := ref.Location()
	duration := time.Duration(durationMinutes) * time.Minute
	tz := loc.String()

	var slots []models.Slot
	for day := 0; day < daysToCheck; day++ {
		midnight := time.Date(ref.Year(), ref.Month(), ref.Day()+day, 0, 0, 0, 0, loc)
		dayEnd := midnight.Add(time.Duration(workingHoursEnd) * time.Hour)

		for start := midnight.Add(time.Duration(workingHoursStart) * time.Hour); ; start = start.Add(stepMinutes * time.Minute) {
			end := start.Add(duration)
			if end.After(dayEnd) {
				break
			}
			if conflictsAny(start, end, busy) {
				continue
			}
			slots = append(slots, models.Slot{Start: start, End: end, Timezone: tz})
			if len(slots) >= maxSlots {
				return slots
			}
		}
	}
	return slots
}

func conflictsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if conflicts(start, end, b) {
			return true
		}
	}
	return false
}

// conflicts applies the three-way overlap test against a busy [start, end):
// candidate start inside, candidate end inside, or candidate encloses it.
func conflicts(start, end time.Time, b Interval) bool {
	if !start.Before(b.Start) && start.Before(b.End) {
		return true
	}
	if end.After(b.Start) && !end.After(b.End) {
		return true
	}
	if !start.After(b.Start) && !end.Before(b.End) {
		return true
	}
	return false
}

// ScoreSlot rates a slot in [0, 1]. The heuristic starts at 1.0 and applies
// additive adjustments in a fixed order before clamping. All hour and weekday
// checks use the slot's own timezone, never machine-local time.
func ScoreSlot(slot models.Slot, prefs Preferences) float64 {
	local := slot.Start.In(slot.Location())
	hour := local.Hour()
	weekday := local.Weekday()
	hhmm := local.Format("15:04")

	score := 1.0

	switch {
	case hour >= 9 && hour < 11:
		score += 0.3
	case hour >= 13 && hour < 15:
		score += 0.2
	}
	if hour < 9 {
		score -= 0.2
	}
	if hour >= 16 {
		score -= 0.1
	}

	if weekday == time.Saturday || weekday == time.Sunday {
		score -= 0.3
	}
	if weekday == time.Monday && hour < 10 {
		score -= 0.1
	}
	if weekday == time.Friday && hour >= 15 {
		score -= 0.1
	}

	if containsTime(prefs.PreferredTimes, hhmm) {
		score += 0.4
	}
	if containsTime(prefs.AvoidTimes, hhmm) {
		score -= 0.5
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func containsTime(times []string, hhmm string) bool {
	for _, t := range times {
		if t == hhmm {
			return true
		}
	}
	return false
}

// Rank sorts slots by descending score, breaking ties by earlier start.
func Rank(slots []models.Slot) []models.Slot {
	ranked := make([]models.Slot, len(slots))
	copy(ranked, slots)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Start.Before(ranked[j].Start)
	})
	return ranked
}
