// Package util holds small helpers shared by the HTTP and service layers.
package util

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	crlf         = strings.NewReplacer("\r\n", " ")
	controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]+`)
)

// SanitizeForLog collapses newlines and other control characters in user
// supplied text to single spaces so it cannot forge log lines.
func SanitizeForLog(s string) string {
	if s == "" {
		return s
	}
	return controlChars.ReplaceAllString(crlf.Replace(s), " ")
}

// Clip sanitizes s for logging and truncates it to at most max bytes without
// splitting a UTF-8 sequence. A negative max disables truncation.
func Clip(s string, max int) string {
	s = SanitizeForLog(s)
	if max < 0 || len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
