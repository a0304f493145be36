package projection

import (
	"maps"

	"github.com/npratt/wingman/internal/events"
)

// Projection names.
const (
	NameEventCounter  = "EventCounter"
	NameLatestEvent   = "LatestEvent"
	NameCurrentStatus = "CurrentStatus"
	NameDockingState  = "DockingState"
	NameInCombat      = "InCombat"
	NameLocation      = "Location"
	NameIdle          = "Idle"
	NameJumpCooldown  = "JumpCooldown"
)

// CounterState counts processed events.
type CounterState struct {
	Count  int            `json:"count"`
	ByKind map[string]int `json:"by_kind"`
}

// EventCounter counts every event it sees, in total and per kind.
type EventCounter struct{}

func (EventCounter) DefaultState() CounterState {
	return CounterState{ByKind: map[string]int{}}
}

func (EventCounter) Process(s CounterState, evt events.Event) (CounterState, []*events.ProjectedEvent, error) {
	byKind := maps.Clone(s.ByKind)
	if byKind == nil {
		byKind = map[string]int{}
	}
	byKind[string(evt.Kind())]++
	s.ByKind = byKind
	s.Count++
	return s, nil, nil
}

// LatestEventState holds the most recent body of each named event.
type LatestEventState struct {
	Events map[string]map[string]any `json:"events"`
}

// LatestEvent remembers the last occurrence of every map-bodied event by
// name, so callers can ask for e.g. the last "Loadout" without scanning.
type LatestEvent struct{}

func (LatestEvent) DefaultState() LatestEventState {
	return LatestEventState{Events: map[string]map[string]any{}}
}

func (LatestEvent) Process(s LatestEventState, evt events.Event) (LatestEventState, []*events.ProjectedEvent, error) {
	content := events.Content(evt)
	if content == nil {
		return s, nil, nil
	}
	latest := maps.Clone(s.Events)
	if latest == nil {
		latest = map[string]map[string]any{}
	}
	latest[events.Name(evt)] = maps.Clone(content)
	s.Events = latest
	return s, nil, nil
}
