package models

import "fmt"

// Intent is the classified purpose of an inbound email.
type Intent string

const (
	IntentSchedule    Intent = "schedule"
	IntentReschedule  Intent = "reschedule"
	IntentCancel      Intent = "cancel"
	IntentConfirm     Intent = "confirm"
	IntentInfoRequest Intent = "info_request"
)

// ParseIntent validates a raw intent string from the classifier.
func ParseIntent(s string) (Intent, error) {
	switch Intent(s) {
	case IntentSchedule, IntentReschedule, IntentCancel, IntentConfirm, IntentInfoRequest:
		return Intent(s), nil
	default:
		return "", fmt.Errorf("unknown intent %q", s)
	}
}
