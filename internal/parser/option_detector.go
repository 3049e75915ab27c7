package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// OptionDetector extracts a chosen option number from confirmation replies
// ("option 2 works", "let's go with slot 1"). It backs up the classifier
// when the chosen index is missing from its output; the classifier wins
// whenever both produce one.
type OptionDetector struct {
	patterns []*regexp.Regexp
	words    map[string]int
}

// NewOptionDetector creates a new option detector
func NewOptionDetector() *OptionDetector {
	return &OptionDetector{
		patterns: []*regexp.Regexp{
			// "option 2", "slot 2", "choice 2", "number 2", "#2"
			regexp.MustCompile(`(?i)\b(?:option|slot|choice|number)\s*#?\s*(\d{1,2})\b`),
			regexp.MustCompile(`(?i)#(\d{1,2})\b`),
			// "the 2nd one", "2nd option"
			regexp.MustCompile(`(?i)\bthe\s+(\d{1,2})(?:st|nd|rd|th)\b`),
			regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\s+(?:option|slot|one|choice)\b`),
		},
		words: map[string]int{
			"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
		},
	}
}

// DetectChosenOption returns the zero-based slot index mentioned in the text,
// or (0, false) when none is found. Labels in replies are one-based.
func (d *OptionDetector) DetectChosenOption(text string) (int, bool) {
	for _, pattern := range d.patterns {
		match := pattern.FindStringSubmatch(text)
		if len(match) > 1 {
			n, err := strconv.Atoi(match[1])
			if err != nil || n < 1 {
				continue
			}
			return n - 1, true
		}
	}

	// Ordinal words: "the second option", "first one works"
	lower := strings.ToLower(text)
	for word, n := range d.words {
		if strings.Contains(lower, word+" option") ||
			strings.Contains(lower, word+" slot") ||
			strings.Contains(lower, word+" one") ||
			strings.Contains(lower, "the "+word) {
			return n - 1, true
		}
	}

	return 0, false
}
