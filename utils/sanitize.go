package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

const maxCleanPasses = 4

// CleanText strips all markup from user-supplied text and trims it. The result is
// stored as plain text. Entities are decoded before stripping and the pass repeats
// until the value is stable, so encoded markup cannot survive as tags.
func CleanText(input string) string {
	s := input
	for i := 0; i < maxCleanPasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(html.UnescapeString(s))))
		if next == s {
			return s
		}
		s = next
	}
	// Still changing after every pass: keep the policy's escaped output
	return strings.TrimSpace(sanitizer.Sanitize(s))
}

// CleanOptional is CleanText for nullable columns; blank input becomes nil.
func CleanOptional(input *string) *string {
	if input == nil {
		return nil
	}
	s := CleanText(*input)
	if s == "" {
		return nil
	}
	return &s
}
