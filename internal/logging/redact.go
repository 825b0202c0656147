package logging

import (
	"regexp"
	"strings"
)

// Patterns for credentials that must never reach the log output. The
// client carries a session token in request headers and websocket
// dial URLs, so transport errors are redacted before logging.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+([a-zA-Z0-9._-]{16,})`),
	regexp.MustCompile(`(?i)(token|auth|session)[=:]["']?([a-zA-Z0-9+/=._-]{16,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces credential material in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// RedactURL strips query parameters that look like credentials from a
// URL string, keeping the rest intact for debugging.
func RedactURL(raw string) string {
	idx := strings.IndexByte(raw, '?')
	if idx < 0 {
		return raw
	}
	return raw[:idx+1] + Redact(raw[idx+1:])
}
