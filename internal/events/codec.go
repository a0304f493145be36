package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownClass is returned by Decode for an unregistered event class.
var ErrUnknownClass = errors.New("unknown event class")

// Encode serializes an event to its storage class and JSON body.
func Encode(e Event) (Class, []byte, error) {
	if e == nil {
		return "", nil, errors.New("encode nil event")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", e.Class(), err)
	}
	return e.Class(), data, nil
}

// Decode reconstructs an event from its storage class and JSON body.
func Decode(class Class, data []byte) (Event, error) {
	var e Event
	switch class {
	case ClassGame:
		e = &GameEvent{}
	case ClassStatus:
		e = &StatusEvent{}
	case ClassConversation:
		e = &ConversationEvent{}
	case ClassTool:
		e = &ToolEvent{}
	case ClassProjected:
		e = &ProjectedEvent{}
	case ClassExternal:
		e = &ExternalEvent{}
	case ClassMemory:
		e = &MemoryEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", class, err)
	}
	return e, nil
}

// Clone returns a deep copy of e. Numeric values inside map bodies come back
// as float64, which is how every consumer already sees persisted events.
func Clone(e Event) Event {
	class, data, err := Encode(e)
	if err != nil {
		return e
	}
	c, err := Decode(class, data)
	if err != nil {
		return e
	}
	return c
}

// envelope is the self-describing JSON form used on the wire and in sinks.
type envelope struct {
	Class Class           `json:"class"`
	Event json.RawMessage `json:"event"`
}

// MarshalEnvelope encodes e together with its class.
func MarshalEnvelope(e Event) ([]byte, error) {
	class, data, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Class: class, Event: data})
}

// UnmarshalEnvelope decodes the output of MarshalEnvelope.
func UnmarshalEnvelope(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return Decode(env.Class, env.Event)
}
