package projection

import (
	"time"

	"github.com/npratt/wingman/internal/events"
)

// gameEvent returns the journal entry name and body of a GameEvent.
func gameEvent(evt events.Event) (string, map[string]any, bool) {
	g, ok := evt.(*events.GameEvent)
	if !ok {
		return "", nil, false
	}
	name, _ := g.Content["event"].(string)
	return name, g.Content, true
}

// statusEvent returns the name and body of a StatusEvent.
func statusEvent(evt events.Event) (string, map[string]any, bool) {
	s, ok := evt.(*events.StatusEvent)
	if !ok {
		return "", nil, false
	}
	name, _ := s.Status["event"].(string)
	return name, s.Status, true
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func strOr(m map[string]any, key, fallback string) string {
	if s := str(m, key); s != "" {
		return s
	}
	return fallback
}

func boolean(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func number(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func floats(m map[string]any, key string) []float64 {
	raw, ok := m[key].([]any)
	if !ok {
		if fs, ok := m[key].([]float64); ok {
			return append([]float64(nil), fs...)
		}
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

// eventTime parses the producer timestamp of evt.
func eventTime(evt events.Event) (time.Time, bool) {
	t, err := events.ParseTimestamp(evt.Base().Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// emit builds projected events carrying only an event name.
func emit(names ...string) []*events.ProjectedEvent {
	out := make([]*events.ProjectedEvent, len(names))
	for i, n := range names {
		out[i] = events.NewProjectedEvent(map[string]any{"event": n})
	}
	return out
}
