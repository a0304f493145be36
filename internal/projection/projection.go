// Package projection defines the reducer contract driven by the event manager
// and the concrete projections that fold the game's event stream into
// queryable state.
//
// Reducers are written against a typed state S and adapted to the
// type-erased Projection interface with New. A reducer must be pure: no I/O,
// no blocking, and identical output for identical input so replay after a
// restart reproduces the same state. Reducers receive the state by value and
// must copy maps and slices before modifying them.
package projection

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/npratt/wingman/internal/events"
)

// Reducer folds events into a state of type S.
type Reducer[S any] interface {
	DefaultState() S
	Process(state S, evt events.Event) (S, []*events.ProjectedEvent, error)
}

// TimerReducer is implemented by reducers with time-based transitions.
type TimerReducer[S any] interface {
	ProcessTimer(state S, now time.Time) (S, []*events.ProjectedEvent, error)
}

// Projection is the type-erased form of a reducer.
type Projection interface {
	Name() string
	// SchemaVersion identifies the reducer's state layout. Persisted
	// snapshots with a different version are discarded.
	SchemaVersion() string
	DefaultState() any
	Process(state any, evt events.Event) (any, []*events.ProjectedEvent, error)
	HasTimer() bool
	ProcessTimer(state any, now time.Time) (any, []*events.ProjectedEvent, error)
	Encode(state any) (json.RawMessage, error)
	Decode(data json.RawMessage) (any, error)
	// Clone deep-copies a state value.
	Clone(state any) any
	// Reducer returns the wrapped reducer.
	Reducer() any
}

type typed[S any] struct {
	name    string
	version string
	reducer Reducer[S]
	timer   TimerReducer[S]
}

// New adapts a typed reducer. version is bumped by hand whenever the
// reducer's behavior changes in a way that invalidates persisted state;
// changes to the fields of S are picked up automatically.
func New[S any](name string, version int, r Reducer[S]) Projection {
	p := &typed[S]{
		name:    name,
		version: SchemaVersion(name, version, reflect.TypeFor[S]()),
		reducer: r,
	}
	if t, ok := r.(TimerReducer[S]); ok {
		p.timer = t
	}
	return p
}

func (p *typed[S]) Name() string          { return p.name }
func (p *typed[S]) SchemaVersion() string { return p.version }
func (p *typed[S]) DefaultState() any     { return p.reducer.DefaultState() }
func (p *typed[S]) HasTimer() bool        { return p.timer != nil }
func (p *typed[S]) Reducer() any          { return p.reducer }

func (p *typed[S]) cast(state any) (S, error) {
	if state == nil {
		return p.reducer.DefaultState(), nil
	}
	s, ok := state.(S)
	if !ok {
		var zero S
		return zero, fmt.Errorf("projection %s: state has type %T, want %T", p.name, state, zero)
	}
	return s, nil
}

func (p *typed[S]) Process(state any, evt events.Event) (any, []*events.ProjectedEvent, error) {
	s, err := p.cast(state)
	if err != nil {
		return state, nil, err
	}
	next, out, err := p.reducer.Process(s, evt)
	if err != nil {
		return state, nil, err
	}
	return next, out, nil
}

func (p *typed[S]) ProcessTimer(state any, now time.Time) (any, []*events.ProjectedEvent, error) {
	if p.timer == nil {
		return state, nil, nil
	}
	s, err := p.cast(state)
	if err != nil {
		return state, nil, err
	}
	next, out, err := p.timer.ProcessTimer(s, now)
	if err != nil {
		return state, nil, err
	}
	return next, out, nil
}

func (p *typed[S]) Encode(state any) (json.RawMessage, error) {
	s, err := p.cast(state)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s state: %w", p.name, err)
	}
	return data, nil
}

func (p *typed[S]) Decode(data json.RawMessage) (any, error) {
	s := p.reducer.DefaultState()
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode %s state: %w", p.name, err)
	}
	return s, nil
}

func (p *typed[S]) Clone(state any) any {
	s, err := p.cast(state)
	if err != nil {
		return state
	}
	c, err := cloneJSON(s)
	if err != nil {
		return state
	}
	return c
}

func cloneJSON[S any](s S) (S, error) {
	var out S
	data, err := json.Marshal(s)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}
