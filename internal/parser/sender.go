package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minHintTokenLength is the shortest hint token used for loose matching
const minHintTokenLength = 3

// MatchesPattern reports whether sender matches a glob pattern where '*' is
// any run of characters and '?' is a single character. Matching is anchored
// and case-insensitive; every other character is literal.
func MatchesPattern(sender, pattern string) bool {
	var sb strings.Builder
	sb.WriteString(`(?is)^`)
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(`.*`)
		case '?':
			sb.WriteString(`.`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString(`$`)

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(sender)
}

// MentionsSender reports whether content mentions the expected sender hint.
// The full hint is tried first; otherwise any hint word of at least three
// characters is enough, so "Acme Inc" still matches a message from "Acme".
func MentionsSender(content, hint string) bool {
	content = strings.ToLower(content)
	hint = strings.ToLower(strings.TrimSpace(hint))

	if strings.Contains(content, hint) {
		return true
	}

	for _, token := range strings.Fields(hint) {
		if utf8.RuneCountInString(token) < minHintTokenLength {
			continue
		}
		if strings.Contains(content, token) {
			return true
		}
	}
	return false
}
