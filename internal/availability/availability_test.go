package availability

import (
	"testing"
	"time"

	"github.com/inboxpilot/scheduler/pkg/models"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestFindFreeSlotsEmptyCalendar(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	ref := time.Date(2025, 3, 12, 8, 0, 0, 0, loc) // Wednesday

	slots := FindFreeSlots(ref, nil, 30, 9, 17, 1)

	if len(slots) != 10 {
		t.Fatalf("expected hard cap of 10 slots, got %d", len(slots))
	}
	first := time.Date(2025, 3, 12, 9, 0, 0, 0, loc)
	if !slots[0].Start.Equal(first) {
		t.Errorf("first slot starts at %v, want %v", slots[0].Start, first)
	}
	second := first.Add(30 * time.Minute)
	if !slots[1].Start.Equal(second) {
		t.Errorf("second slot starts at %v, want %v", slots[1].Start, second)
	}
	dayEnd := time.Date(2025, 3, 12, 17, 0, 0, 0, loc)
	for i, s := range slots {
		if s.End.After(dayEnd) {
			t.Errorf("slot %d ends at %v, past working hours end %v", i, s.End, dayEnd)
		}
		if s.Timezone != "America/New_York" {
			t.Errorf("slot %d timezone = %q", i, s.Timezone)
		}
	}
}

func TestFindFreeSlotsNoConflicts(t *testing.T) {
	loc := mustLoc(t, "Europe/Berlin")
	ref := time.Date(2025, 6, 2, 0, 0, 0, 0, loc)

	busy := []Interval{
		{Start: time.Date(2025, 6, 2, 9, 0, 0, 0, loc), End: time.Date(2025, 6, 2, 10, 30, 0, 0, loc)},
		{Start: time.Date(2025, 6, 2, 12, 15, 0, 0, loc), End: time.Date(2025, 6, 2, 12, 45, 0, 0, loc)},
		{Start: time.Date(2025, 6, 3, 14, 0, 0, 0, loc), End: time.Date(2025, 6, 3, 15, 0, 0, 0, loc)},
	}

	slots := FindFreeSlots(ref, busy, 60, 9, 17, 3)
	if len(slots) == 0 {
		t.Fatal("expected some free slots")
	}
	for _, s := range slots {
		for _, b := range busy {
			if conflicts(s.Start, s.End, b) {
				t.Errorf("slot [%v, %v) overlaps busy [%v, %v)", s.Start, s.End, b.Start, b.End)
			}
		}
	}
	// 09:00-10:30 busy plus a 60-minute duration pushes the first start to 10:30.
	want := time.Date(2025, 6, 2, 10, 30, 0, 0, loc)
	if !slots[0].Start.Equal(want) {
		t.Errorf("first slot starts at %v, want %v", slots[0].Start, want)
	}
}

func TestFindFreeSlotsEnclosedBusyInterval(t *testing.T) {
	loc := time.UTC
	ref := time.Date(2025, 6, 4, 0, 0, 0, 0, loc)

	// A 15-minute busy block fully inside a candidate must still kill it.
	busy := []Interval{
		{Start: time.Date(2025, 6, 4, 9, 10, 0, 0, loc), End: time.Date(2025, 6, 4, 9, 25, 0, 0, loc)},
	}

	slots := FindFreeSlots(ref, busy, 60, 9, 17, 1)
	for _, s := range slots {
		if s.Start.Hour() == 9 && s.Start.Minute() == 0 {
			t.Errorf("candidate enclosing the busy interval was not discarded: [%v, %v)", s.Start, s.End)
		}
	}
}

func TestFindFreeSlotsNoWraparound(t *testing.T) {
	loc := time.UTC
	ref := time.Date(2025, 6, 4, 0, 0, 0, 0, loc)

	// 90-minute meetings in a 9-10 window never fit.
	slots := FindFreeSlots(ref, nil, 90, 9, 10, 2)
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}

func TestFindFreeSlotsSpansDays(t *testing.T) {
	loc := time.UTC
	ref := time.Date(2025, 6, 4, 0, 0, 0, 0, loc)

	// One candidate per day (8-hour meeting in an 8-hour window).
	slots := FindFreeSlots(ref, nil, 480, 9, 17, 3)
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	for i, s := range slots {
		wantDay := 4 + i
		if s.Start.Day() != wantDay {
			t.Errorf("slot %d on day %d, want %d", i, s.Start.Day(), wantDay)
		}
	}
}

func TestScoreSlotBounded(t *testing.T) {
	loc := mustLoc(t, "Asia/Tokyo")
	prefs := Preferences{PreferredTimes: []string{"09:00"}, AvoidTimes: []string{"08:00"}}

	// Sweep a couple of weeks at every half hour.
	for day := 0; day < 14; day++ {
		for halfHour := 0; halfHour < 48; halfHour++ {
			start := time.Date(2025, 3, 3+day, 0, 0, 0, 0, loc).Add(time.Duration(halfHour) * 30 * time.Minute)
			slot := models.Slot{Start: start, End: start.Add(30 * time.Minute), Timezone: "Asia/Tokyo"}
			score := ScoreSlot(slot, prefs)
			if score < 0 || score > 1 {
				t.Fatalf("score %v out of [0,1] for %v", score, start)
			}
		}
	}
}

func TestScoreSlotHeuristics(t *testing.T) {
	loc := mustLoc(t, "America/Chicago")
	mk := func(day, hour, min int) models.Slot {
		start := time.Date(2025, 6, day, hour, min, 0, 0, loc)
		return models.Slot{Start: start, End: start.Add(30 * time.Minute), Timezone: "America/Chicago"}
	}

	tests := []struct {
		name  string
		slot  models.Slot
		prefs Preferences
		want  float64
	}{
		// June 2025: 2nd is a Monday, 6th a Friday, 7th a Saturday.
		{"midweek morning sweet spot clamps to 1", mk(4, 9, 30), Preferences{}, 1.0},
		{"midweek early afternoon", mk(4, 13, 0), Preferences{}, 1.0},
		{"midweek noon neutral", mk(4, 12, 0), Preferences{}, 1.0},
		{"early morning penalty", mk(4, 8, 0), Preferences{}, 0.8},
		{"late afternoon penalty", mk(4, 16, 30), Preferences{}, 0.9},
		{"saturday penalty", mk(7, 12, 0), Preferences{}, 0.7},
		{"monday early stacks with early-morning", mk(2, 8, 0), Preferences{}, 0.7},
		{"monday 9am still clamps to 1", mk(2, 9, 0), Preferences{}, 1.0},
		{"friday late", mk(6, 16, 0), Preferences{}, 0.8},
		{"preferred time bonus clamps", mk(4, 10, 0), Preferences{PreferredTimes: []string{"10:00"}}, 1.0},
		{"avoid time penalty", mk(4, 12, 0), Preferences{AvoidTimes: []string{"12:00"}}, 0.5},
		{"avoid beats weekend floor", mk(7, 8, 0), Preferences{AvoidTimes: []string{"08:00"}}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreSlot(tt.slot, tt.prefs)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ScoreSlot() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreSlotUsesSlotTimezone(t *testing.T) {
	// 14:00 in New York is 19:00 UTC; the bonus must follow the slot's zone.
	ny := mustLoc(t, "America/New_York")
	start := time.Date(2025, 6, 4, 14, 0, 0, 0, ny)

	slot := models.Slot{Start: start.UTC(), End: start.UTC().Add(30 * time.Minute), Timezone: "America/New_York"}
	if got := ScoreSlot(slot, Preferences{}); got != 1.0 {
		t.Errorf("score in slot timezone = %v, want 1.0 (early-afternoon bonus)", got)
	}

	utcSlot := models.Slot{Start: start.UTC(), End: start.UTC().Add(30 * time.Minute), Timezone: "UTC"}
	if got := ScoreSlot(utcSlot, Preferences{}); got != 0.9 {
		t.Errorf("score in UTC = %v, want 0.9 (late-evening penalty)", got)
	}
}

func TestRank(t *testing.T) {
	loc := time.UTC
	a := models.Slot{Start: time.Date(2025, 6, 4, 9, 0, 0, 0, loc), Score: 0.9}
	b := models.Slot{Start: time.Date(2025, 6, 4, 10, 0, 0, 0, loc), Score: 0.9}
	c := models.Slot{Start: time.Date(2025, 6, 4, 8, 0, 0, 0, loc), Score: 0.7}

	ranked := Rank([]models.Slot{c, b, a})
	if !ranked[0].Start.Equal(a.Start) || !ranked[1].Start.Equal(b.Start) || !ranked[2].Start.Equal(c.Start) {
		t.Errorf("Rank order wrong: %v", ranked)
	}
}
