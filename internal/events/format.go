package events

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

const (
	maxTextLength     = 200
	maxFieldLength    = 40
	maxDetailFields   = 3
	truncateIndicator = "..."
)

// fieldsToSkip are journal keys that never help a one-line summary.
var fieldsToSkip = map[string]bool{
	"event":     true,
	"timestamp": true,
}

// Format converts an event to a human-readable one-line summary.
// Returns empty string for nil events.
func Format(evt Event) string {
	if evt == nil {
		return ""
	}

	switch e := evt.(type) {
	case *GameEvent:
		prefix := "game"
		if e.Historic {
			prefix = "history"
		}
		return formatMapEvent(prefix, e.Content)
	case *StatusEvent:
		return formatMapEvent("status", e.Status)
	case *ProjectedEvent:
		return formatMapEvent("projected", e.Content)
	case *ExternalEvent:
		return formatMapEvent("external", e.Content)
	case *ConversationEvent:
		return fmt.Sprintf("%s: %s", e.Kind(), Truncate(e.Content, maxTextLength))
	case *ToolEvent:
		return formatTool(e)
	case *MemoryEvent:
		return fmt.Sprintf("memory: %s", Truncate(e.Content, maxTextLength))
	default:
		return string(evt.Kind())
	}
}

// FormatWithTimestamp formats an event with a processing-time prefix.
func FormatWithTimestamp(evt Event) string {
	if evt == nil {
		return ""
	}
	ts := evt.Base().ProcessedTime().Format("15:04:05")
	return fmt.Sprintf("[%s] %s", ts, Format(evt))
}

func formatMapEvent(prefix string, content map[string]any) string {
	name := SafeString(getStringValue(content, "event"))
	if name == "" {
		name = "(unnamed)"
	}
	detail := summarizeFields(content)
	if detail == "" {
		return fmt.Sprintf("%s: %s", prefix, name)
	}
	return fmt.Sprintf("%s: %s %s", prefix, name, detail)
}

// summarizeFields renders the first few scalar fields in key order.
func summarizeFields(content map[string]any) string {
	keys := make([]string, 0, len(content))
	for k := range content {
		if fieldsToSkip[k] || strings.HasSuffix(k, "_Localised") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, maxDetailFields)
	for _, k := range keys {
		if len(parts) == maxDetailFields {
			break
		}
		switch v := content[k].(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s=%s", k, Truncate(v, maxFieldLength)))
		case bool, float64, int, int64:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, " ")
}

func formatTool(e *ToolEvent) string {
	names := make([]string, 0, len(e.Request))
	for _, req := range e.Request {
		if n := getStringValue(req, "name"); n != "" {
			names = append(names, n)
			continue
		}
		if fn, ok := req["function"].(map[string]any); ok {
			if n := getStringValue(fn, "name"); n != "" {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("tool: %d call(s)", len(e.Request))
	}
	return fmt.Sprintf("tool: %s", Truncate(strings.Join(names, ", "), maxTextLength))
}

// getStringValue safely extracts a string value from a map.
func getStringValue(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Truncate shortens text to maxLen, adding indicator if truncated.
func Truncate(s string, maxLen int) string {
	s = SafeString(s)
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= len(truncateIndicator) {
		return truncateIndicator
	}
	return s[:maxLen-len(truncateIndicator)] + truncateIndicator
}

// ansiRegex matches ANSI escape sequences.
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences from a string.
func StripANSI(s string) string {
	return ansiRegex.ReplaceAllString(s, "")
}

// SafeString sanitizes a string for display by removing control characters
// and limiting newlines.
func SafeString(s string) string {
	s = StripANSI(s)

	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if r == ' ' || !unicode.IsControl(r) {
			sb.WriteRune(r)
		}
	}

	result := sb.String()
	for strings.Contains(result, "  ") {
		result = strings.ReplaceAll(result, "  ", " ")
	}

	return strings.TrimSpace(result)
}
