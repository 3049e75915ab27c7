package models

import "time"

// Slot is a candidate or chosen [start, end) interval for a meeting.
// Scores are on a 0..1 scale everywhere, including persisted JSON.
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Score    float64   `json:"score"`
	Reason   string    `json:"reason,omitempty"`
	Timezone string    `json:"timezone"` // IANA name, e.g. America/New_York
}

// Location resolves the slot's timezone, falling back to UTC.
func (s Slot) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || s.Timezone == "" {
		return time.UTC
	}
	return loc
}
