package report

import (
	"regexp"
	"strings"

	"bitacora/internal/audit"
)

// Payload keys stripped from exported records unless the caller is
// authorized for unredacted export. Matching is case-insensitive and also
// catches suffixed variants ("session_token", "client_ip").
var sensitiveKeys = []string{
	"ip", "ip_address", "password", "credential", "credentials",
	"token", "access_token", "refresh_token", "session_token",
	"secret", "api_key", "authorization",
}

// Free-text patterns scrubbed from description and detail.
var (
	ipPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-_.~+/]+=*`)
	secretPattern = regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`)
)

const mask = "[REDACTED]"

// redactEvent returns a copy of the event with sensitive payload fields
// removed and free-text fields scrubbed. All other fields are left intact.
func redactEvent(event audit.Event) audit.Event {
	out := event
	out.Description = scrubText(event.Description)
	out.Detail = scrubText(event.Detail)

	if len(event.Payload) > 0 {
		payload := make(map[string]any, len(event.Payload))
		for key, value := range event.Payload {
			if isSensitiveKey(key) {
				continue
			}
			if text, ok := value.(string); ok {
				payload[key] = scrubText(text)
				continue
			}
			payload[key] = value
		}
		out.Payload = payload
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if lower == sensitive || strings.HasSuffix(lower, "_"+sensitive) {
			return true
		}
	}
	return false
}

func scrubText(text string) string {
	if text == "" {
		return text
	}
	text = ipPattern.ReplaceAllString(text, mask)
	text = bearerPattern.ReplaceAllString(text, mask)
	text = secretPattern.ReplaceAllString(text, mask)
	return text
}
