package agent

import (
	"context"
	"regexp"
	"strings"

	"github.com/inboxpilot/scheduler/pkg/models"
)

// KeywordClassifier is the fallback intent classifier used when no agent
// endpoint is configured. It only looks at wording, so it is deliberately
// conservative: anything it cannot place lands on info_request, which takes
// no scheduling action.
type KeywordClassifier struct {
	optionRef *regexp.Regexp
	dateRef   *regexp.Regexp
}

// NewKeywordClassifier creates the fallback classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		optionRef: regexp.MustCompile(`(?i)\b(?:option|slot|choice)\s*#?\s*\d`),
		dateRef:   regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`),
	}
}

// Classify maps keywords to an intent.
func (c *KeywordClassifier) Classify(_ context.Context, subject, body string) (*Classification, error) {
	text := strings.ToLower(subject + "\n" + body)

	cls := &Classification{Intent: models.IntentInfoRequest}
	if m := c.dateRef.FindStringSubmatch(body); m != nil {
		cls.RequestedDate = m[1]
	}

	switch {
	case containsAny(text, "cancel", "call off", "no longer need", "won't be needing"):
		cls.Intent = models.IntentCancel
	case containsAny(text, "reschedule", "move the meeting", "different time", "push it", "another time"):
		cls.Intent = models.IntentReschedule
	case c.optionRef.MatchString(text) ||
		containsAny(text, "works for me", "sounds good", "confirm", "let's do", "that works"):
		cls.Intent = models.IntentConfirm
	case containsAny(text, "schedule", "meet", "meeting", "find a time", "set up a call", "catch up", "sync up"):
		cls.Intent = models.IntentSchedule
	}
	return cls, nil
}

func containsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
