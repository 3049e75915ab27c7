// Package compose builds the plain-text reply bodies the workflow sends.
package compose

import (
	"fmt"
	"strings"

	"github.com/inboxpilot/scheduler/pkg/models"
)

// Composer formats scheduling replies in the user's timezone.
type Composer struct {
	signature string
}

// NewComposer creates a composer with an optional signature line.
func NewComposer(signature string) *Composer {
	if signature == "" {
		signature = "This meeting was scheduled automatically."
	}
	return &Composer{signature: signature}
}

// Proposal lists numbered slot options. When dateFallback is set, the reply
// opens by noting the requested date had no availability and these options
// come from a wider search.
func (c *Composer) Proposal(slots []models.Slot, requestedDate string, dateFallback bool) string {
	var sb strings.Builder

	sb.WriteString("Hi,\n\n")
	if dateFallback {
		sb.WriteString(fmt.Sprintf(
			"Unfortunately there was no availability on %s, so here are the best alternatives:\n\n",
			requestedDate))
	} else {
		sb.WriteString("Here are a few times that could work:\n\n")
	}

	for i, slot := range slots {
		local := slot.Start.In(slot.Location())
		sb.WriteString(fmt.Sprintf("Option %d: %s, %s - %s (%s)\n",
			i+1,
			local.Format("Monday, January 2"),
			local.Format("15:04"),
			slot.End.In(slot.Location()).Format("15:04"),
			slot.Timezone,
		))
		if slot.Reason != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", slot.Reason))
		}
	}

	sb.WriteString("\nJust reply with the option that suits you best.\n\n")
	sb.WriteString(c.signature)
	return sb.String()
}

// Confirmation acknowledges the booked slot.
func (c *Composer) Confirmation(slot models.Slot, title string) string {
	local := slot.Start.In(slot.Location())
	var sb strings.Builder
	sb.WriteString("Hi,\n\n")
	sb.WriteString(fmt.Sprintf("You're all set: \"%s\" is booked for %s, %s - %s (%s).\n",
		title,
		local.Format("Monday, January 2"),
		local.Format("15:04"),
		slot.End.In(slot.Location()).Format("15:04"),
		slot.Timezone,
	))
	sb.WriteString("A calendar invitation is on its way.\n\n")
	sb.WriteString(c.signature)
	return sb.String()
}

// Cancellation acknowledges a cancelled meeting.
func (c *Composer) Cancellation(title string) string {
	var sb strings.Builder
	sb.WriteString("Hi,\n\n")
	if title != "" {
		sb.WriteString(fmt.Sprintf("Your meeting \"%s\" has been cancelled and removed from the calendar.\n\n", title))
	} else {
		sb.WriteString("Your meeting has been cancelled.\n\n")
	}
	sb.WriteString(c.signature)
	return sb.String()
}

// Apology is sent when no slot could be found at all.
func (c *Composer) Apology() string {
	var sb strings.Builder
	sb.WriteString("Hi,\n\n")
	sb.WriteString("I'm sorry - I couldn't find any open time that fits in the next few days. ")
	sb.WriteString("Please suggest a time directly, or try again with a wider range.\n\n")
	sb.WriteString(c.signature)
	return sb.String()
}
