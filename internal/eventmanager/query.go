package eventmanager

import (
	"fmt"

	"github.com/npratt/wingman/internal/events"
)

// GetProjectionState returns a snapshot of the named projection's state.
func (m *Manager) GetProjectionState(name string) (any, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	e, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectionNotFound, name)
	}
	return e.proj.Clone(e.state), nil
}

// StateOf returns a typed snapshot of the named projection's state.
func StateOf[S any](m *Manager, name string) (S, error) {
	var zero S
	v, err := m.GetProjectionState(name)
	if err != nil {
		return zero, err
	}
	s, ok := v.(S)
	if !ok {
		return zero, fmt.Errorf("projection %s has state %T, not %T", name, v, zero)
	}
	return s, nil
}

// ProjectionOf returns the registered reducer of type R.
func ProjectionOf[R any](m *Manager) (R, error) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	for _, e := range m.projections {
		if r, ok := e.proj.Reducer().(R); ok {
			return r, nil
		}
	}
	var zero R
	return zero, fmt.Errorf("%w: no reducer of type %T", ErrProjectionNotFound, zero)
}

// GetCurrentState returns copies of the in-memory history and every
// projection state.
func (m *Manager) GetCurrentState() ([]events.Event, States) {
	m.stateMu.RLock()
	history := make([]events.Event, len(m.history))
	for i, evt := range m.history {
		history[i] = events.Clone(evt)
	}
	m.stateMu.RUnlock()
	return history, m.snapshotStates()
}

// Projections returns the registered projection names in registration order.
func (m *Manager) Projections() []string {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	names := make([]string, len(m.projections))
	for i, e := range m.projections {
		names[i] = e.name()
	}
	return names
}

// QueueLen returns the number of events waiting to be processed.
func (m *Manager) QueueLen() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return len(m.queue)
}

// Stats is a point-in-time summary of the manager.
type Stats struct {
	Queued        int     `json:"queued"`
	History       int     `json:"history"`
	Projections   int     `json:"projections"`
	Waiters       int     `json:"waiters"`
	LastProcessed float64 `json:"last_processed"`
}

// Stats returns counters describing the manager.
func (m *Manager) Stats() Stats {
	s := Stats{Queued: m.QueueLen()}

	m.stateMu.RLock()
	s.History = len(m.history)
	s.Projections = len(m.projections)
	for _, e := range m.projections {
		s.LastProcessed = max(s.LastProcessed, e.lastProcessed)
	}
	m.stateMu.RUnlock()

	s.Waiters = m.conditions.total()
	return s
}
