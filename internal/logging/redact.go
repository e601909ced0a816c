package logging

import "regexp"

// redactPatterns match secrets that must never reach a log line or a
// caller-visible diagnostic: bearer tokens, provider API keys embedded in
// query strings, and common key=value credential shapes.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-_.~+/]+=*`),
	regexp.MustCompile(`(?i)(api[_-]?key["'\s:=]+)[A-Za-z0-9\-_.]{8,}`),
	regexp.MustCompile(`(?i)(authorization["'\s:=]+)[^\s"']+`),
	regexp.MustCompile(`(?i)(sk-[A-Za-z0-9]{16,})`),
	regexp.MustCompile(`(?i)(x-api-key["'\s:=]+)[A-Za-z0-9\-_.]{8,}`),
}

const redactedPlaceholder = "${1}[REDACTED]"

// Redact scrubs known secret shapes from a diagnostic string before it is
// logged or returned to a caller. It is intentionally conservative: it
// only strips patterns that look like credentials, never whole messages.
func Redact(s string) string {
	out := s
	for _, re := range redactPatterns {
		out = re.ReplaceAllString(out, redactedPlaceholder)
	}
	return out
}
