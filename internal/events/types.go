// Package events defines the event taxonomy consumed and produced by the
// projection engine, together with the plumbing (router, sinks, formatting)
// used to publish processed events to observers.
package events

import "time"

// Kind is the discriminant of an event.
type Kind string

// Event kinds.
const (
	KindGame               Kind = "game"
	KindStatus             Kind = "status"
	KindUser               Kind = "user"
	KindUserSpeaking       Kind = "user_speaking"
	KindAssistant          Kind = "assistant"
	KindAssistantActing    Kind = "assistant_acting"
	KindAssistantCompleted Kind = "assistant_completed"
	KindTool               Kind = "tool"
	KindProjected          Kind = "projected"
	KindExternal           Kind = "external"
	KindMemory             Kind = "memory"
)

// ConversationKind is the subset of kinds carried by a ConversationEvent.
type ConversationKind = Kind

// Class names the concrete variant of an event. It is the discriminant used
// in persisted storage.
type Class string

// Event classes.
const (
	ClassGame         Class = "GameEvent"
	ClassStatus       Class = "StatusEvent"
	ClassConversation Class = "ConversationEvent"
	ClassTool         Class = "ToolEvent"
	ClassProjected    Class = "ProjectedEvent"
	ClassExternal     Class = "ExternalEvent"
	ClassMemory       Class = "MemoryEvent"
)

// TimestampLayout is the ISO-8601 layout used for producer timestamps.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Event is implemented by every event variant.
type Event interface {
	Kind() Kind
	Class() Class
	Base() *BaseEvent
}

// BaseEvent provides the fields common to all events.
type BaseEvent struct {
	ID          string   `json:"id,omitempty"`
	EventKind   Kind     `json:"kind"`
	Timestamp   string   `json:"timestamp"`
	ProcessedAt float64  `json:"processed_at"`
	RespondedAt *float64 `json:"responded_at,omitempty"`
	MemorizedAt *float64 `json:"memorized_at,omitempty"`
}

// Kind returns the event kind.
func (e *BaseEvent) Kind() Kind {
	return e.EventKind
}

// Base returns the common fields.
func (e *BaseEvent) Base() *BaseEvent {
	return e
}

// ProcessedTime converts ProcessedAt to a time.Time.
func (e *BaseEvent) ProcessedTime() time.Time {
	return EpochTime(e.ProcessedAt)
}

// newBase creates a BaseEvent of the given kind stamped with the current time.
func newBase(kind Kind) BaseEvent {
	return BaseEvent{
		EventKind: kind,
		Timestamp: FormatTimestamp(time.Now()),
	}
}

// GameEvent is a single entry from the game's journal.
type GameEvent struct {
	BaseEvent
	Content  map[string]any `json:"content"`
	Historic bool           `json:"historic"`
}

// Class returns ClassGame.
func (e *GameEvent) Class() Class { return ClassGame }

// StatusEvent carries a decoded status snapshot or a derived status change.
type StatusEvent struct {
	BaseEvent
	Status map[string]any `json:"status"`
}

// Class returns ClassStatus.
func (e *StatusEvent) Class() Class { return ClassStatus }

// ConversationEvent is a user or assistant utterance.
type ConversationEvent struct {
	BaseEvent
	Content string   `json:"content"`
	Reasons []string `json:"reasons,omitempty"`
}

// Class returns ClassConversation.
func (e *ConversationEvent) Class() Class { return ClassConversation }

// ToolEvent records a batch of tool invocations and their results.
type ToolEvent struct {
	BaseEvent
	Request []map[string]any `json:"request"`
	Results []map[string]any `json:"results"`
	Text    []string         `json:"text,omitempty"`
}

// Class returns ClassTool.
func (e *ToolEvent) Class() Class { return ClassTool }

// ProjectedEvent is emitted by a projection as a by-product of reducing
// another event.
type ProjectedEvent struct {
	BaseEvent
	Content map[string]any `json:"content"`
	// Source names the projection that emitted the event.
	Source   string `json:"source,omitempty"`
	Historic bool   `json:"historic,omitempty"`
}

// Class returns ClassProjected.
func (e *ProjectedEvent) Class() Class { return ClassProjected }

// ExternalEvent is injected by an outside integration.
type ExternalEvent struct {
	BaseEvent
	Content map[string]any `json:"content"`
}

// Class returns ClassExternal.
func (e *ExternalEvent) Class() Class { return ClassExternal }

// MemoryEvent records a long-term memory entry.
type MemoryEvent struct {
	BaseEvent
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
}

// Class returns ClassMemory.
func (e *MemoryEvent) Class() Class { return ClassMemory }

// NewGameEvent creates a GameEvent. The producer timestamp is taken from the
// entry's "timestamp" field when present.
func NewGameEvent(content map[string]any, historic bool) *GameEvent {
	e := &GameEvent{
		BaseEvent: newBase(KindGame),
		Content:   content,
		Historic:  historic,
	}
	if ts := getStringValue(content, "timestamp"); ts != "" {
		e.Timestamp = ts
	}
	return e
}

// NewStatusEvent creates a StatusEvent.
func NewStatusEvent(status map[string]any) *StatusEvent {
	return &StatusEvent{
		BaseEvent: newBase(KindStatus),
		Status:    status,
	}
}

// NewConversationEvent creates a ConversationEvent of the given kind.
func NewConversationEvent(kind ConversationKind, content string, reasons ...string) *ConversationEvent {
	return &ConversationEvent{
		BaseEvent: newBase(kind),
		Content:   content,
		Reasons:   reasons,
	}
}

// NewToolEvent creates a ToolEvent.
func NewToolEvent(request, results []map[string]any, text []string) *ToolEvent {
	return &ToolEvent{
		BaseEvent: newBase(KindTool),
		Request:   request,
		Results:   results,
		Text:      text,
	}
}

// NewProjectedEvent creates a ProjectedEvent. Content must carry an "event"
// field naming it.
func NewProjectedEvent(content map[string]any) *ProjectedEvent {
	return &ProjectedEvent{
		BaseEvent: newBase(KindProjected),
		Content:   content,
	}
}

// NewExternalEvent creates an ExternalEvent.
func NewExternalEvent(content map[string]any) *ExternalEvent {
	return &ExternalEvent{
		BaseEvent: newBase(KindExternal),
		Content:   content,
	}
}

// NewMemoryEvent creates a MemoryEvent.
func NewMemoryEvent(content string, metadata map[string]any, embedding []float32) *MemoryEvent {
	return &MemoryEvent{
		BaseEvent: newBase(KindMemory),
		Content:   content,
		Metadata:  metadata,
		Embedding: embedding,
	}
}

// Content returns the map body of map-bodied events and nil otherwise.
func Content(e Event) map[string]any {
	switch v := e.(type) {
	case *GameEvent:
		return v.Content
	case *StatusEvent:
		return v.Status
	case *ProjectedEvent:
		return v.Content
	case *ExternalEvent:
		return v.Content
	}
	return nil
}

// Name returns the "event" field of map-bodied events, or the kind for
// everything else.
func Name(e Event) string {
	if name := getStringValue(Content(e), "event"); name != "" {
		return name
	}
	return string(e.Kind())
}

// IsHistoric reports whether e was recovered from a previous run, or was
// projected from such an event.
func IsHistoric(e Event) bool {
	switch v := e.(type) {
	case *GameEvent:
		return v.Historic
	case *ProjectedEvent:
		return v.Historic
	}
	return false
}

// ProjectedBy reports whether e is a projected event emitted by the named
// projection.
func ProjectedBy(e Event, name string) bool {
	p, ok := e.(*ProjectedEvent)
	return ok && p.Source != "" && p.Source == name
}

// FormatTimestamp renders t as an ISO-8601 UTC timestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a journal or producer timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// EpochSeconds converts t to float epoch seconds.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// EpochTime converts float epoch seconds to a time.Time.
func EpochTime(sec float64) time.Time {
	return time.Unix(0, int64(sec*1e9))
}
