package services

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// maxUnescapeRounds bounds how deeply nested entity encodings are decoded.
const maxUnescapeRounds = 4

// sanitizeText strips every tag from user-supplied free text. Entities are
// decoded before the policy runs so encoded markup is stripped too; the
// policy's output is kept as is, so "R&D" is stored as "R&amp;D".
func sanitizeText(s string) string {
	for i := 0; i < maxUnescapeRounds; i++ {
		decoded := html.UnescapeString(s)
		if decoded == s {
			break
		}
		s = decoded
	}
	return strings.TrimSpace(textPolicy.Sanitize(s))
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
