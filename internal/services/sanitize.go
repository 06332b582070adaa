package services

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

// cleanText strips all markup from user text and trims surrounding whitespace.
// Entities are decoded again so the stored value is plain text.
func cleanText(input string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(input)))
}
