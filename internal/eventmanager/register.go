package eventmanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/npratt/wingman/internal/events"
	"github.com/npratt/wingman/internal/projection"
	"github.com/npratt/wingman/internal/store"
)

// RegisterProjection adds p to the manager. A persisted snapshot with a
// matching schema version is restored; a stale one is deleted and p starts
// from its default state. p then catches up on every in-memory history event
// newer than its last_processed, with its own projected events regenerated
// and fed back to it rather than read from history. When catch-up fails the error is returned as a *RegistrationError if
// raiseError is set; otherwise it is logged and p is dropped. Store errors
// and duplicate names are always returned.
func (m *Manager) RegisterProjection(ctx context.Context, p projection.Projection, raiseError bool) error {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	name := p.Name()
	m.stateMu.RLock()
	_, exists := m.byName[name]
	m.stateMu.RUnlock()
	if exists {
		return &RegistrationError{Projection: name, Err: ErrDuplicateProjection}
	}

	e := &projectionEntry{proj: p, state: p.DefaultState()}
	if err := m.restore(ctx, e); err != nil {
		return err
	}

	if err := m.catchUp(e); err != nil {
		regErr := &RegistrationError{Projection: name, Err: err}
		if raiseError {
			return regErr
		}
		m.logger.Error("dropping projection", "error", regErr)
		return nil
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := m.saveRecord(tx, e); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.stateMu.Lock()
	m.projections = append(m.projections, e)
	m.byName[name] = e
	m.stateMu.Unlock()
	m.lastProcessed = max(m.lastProcessed, e.lastProcessed)

	m.logger.Info("projection registered",
		"projection", name,
		"schema_version", p.SchemaVersion(),
		"last_processed", e.lastProcessed)

	m.conditions.notify(name, e.state, p.Clone)
	return nil
}

// restore loads the persisted snapshot for e, discarding it when its schema
// version does not match.
func (m *Manager) restore(ctx context.Context, e *projectionEntry) error {
	name := e.name()
	rec, err := m.store.LoadProjection(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load projection %s: %w", name, err)
	}

	if rec.SchemaVersion == e.proj.SchemaVersion() {
		state, err := e.proj.Decode(rec.State)
		if err == nil {
			e.state = state
			e.lastProcessed = rec.LastProcessed
			return nil
		}
		m.logger.Warn("discarding undecodable projection snapshot", "projection", name, "error", err)
	} else {
		m.logger.Info("discarding stale projection snapshot",
			"projection", name,
			"stored_version", rec.SchemaVersion,
			"current_version", e.proj.SchemaVersion())
	}

	if err := m.store.DeleteProjection(ctx, name); err != nil {
		return fmt.Errorf("delete projection %s: %w", name, err)
	}
	return nil
}

// catchUp replays in-memory history newer than e's last_processed through e
// alone. Must be called with procMu held.
func (m *Manager) catchUp(e *projectionEntry) error {
	m.stateMu.RLock()
	pending := make([]events.Event, 0)
	for _, evt := range m.history {
		if evt.Base().ProcessedAt <= e.lastProcessed || events.ProjectedBy(evt, e.name()) {
			continue
		}
		pending = append(pending, evt)
	}
	m.stateMu.RUnlock()

	replayed := 0
	for _, evt := range pending {
		if err := m.replayInto(e, evt, 0); err != nil {
			return err
		}
		replayed++
	}
	if replayed > 0 {
		m.logger.Debug("projection caught up", "projection", e.name(), "events", replayed)
	}
	return nil
}

func (m *Manager) replayInto(e *projectionEntry, evt events.Event, depth int) error {
	next, derived, err := safeProcess(e.proj, e.state, evt)
	if err != nil {
		return &ProjectionError{
			Projection: e.name(),
			EventKind:  evt.Kind(),
			Event:      events.Name(evt),
			Err:        err,
		}
	}
	pa := evt.Base().ProcessedAt
	if pa < e.lastProcessed {
		m.logger.Warn("projection running backwards in time",
			"projection", e.name(),
			"event", events.Name(evt),
			"processed_at", pa,
			"last_processed", e.lastProcessed)
	}
	e.state = next
	e.lastProcessed = max(e.lastProcessed, pa)
	derived = tagSource(e, derived)

	if len(derived) > 0 && depth >= m.maxDepth {
		m.logger.Warn("projected event recursion limit reached during catch-up",
			"projection", e.name(),
			"event", events.Name(evt))
		return nil
	}
	for _, d := range derived {
		if d == nil {
			continue
		}
		d.ProcessedAt = pa
		d.Historic = events.IsHistoric(evt)
		if err := m.replayInto(e, d, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// LoadHistory fills the in-memory history with the newest limit persisted
// events so projections registered afterwards can catch up on them.
func (m *Manager) LoadHistory(ctx context.Context, limit int) error {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	loaded, err := m.store.LatestEvents(ctx, limit)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	for _, evt := range loaded {
		m.appendHistory(evt)
		m.lastProcessed = max(m.lastProcessed, evt.Base().ProcessedAt)
	}
	m.logger.Info("history loaded", "events", len(loaded))
	return nil
}

// ClearHistory empties the event log and every snapshot, then resets the
// in-memory history and projection states to their defaults. Nothing is
// reset when the store fails.
func (m *Manager) ClearHistory(ctx context.Context) error {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	if err := m.store.ClearHistory(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	m.stateMu.Lock()
	m.history = nil
	for _, e := range m.projections {
		e.state = e.proj.DefaultState()
		e.lastProcessed = 0
	}
	entries := m.projections
	m.stateMu.Unlock()

	for _, e := range entries {
		m.conditions.notify(e.name(), e.state, e.proj.Clone)
	}
	m.logger.Info("history cleared")
	return nil
}

// MarkResponded marks every event processed at or before upTo as responded
// to, both in the store and in memory.
func (m *Manager) MarkResponded(ctx context.Context, upTo float64) error {
	if err := m.store.MarkResponded(ctx, upTo); err != nil {
		return fmt.Errorf("mark responded: %w", err)
	}
	m.markHistory(upTo, func(b *events.BaseEvent) **float64 { return &b.RespondedAt })
	return nil
}

// MarkMemorized marks every event processed at or before upTo as summarized
// into long-term memory, both in the store and in memory.
func (m *Manager) MarkMemorized(ctx context.Context, upTo float64) error {
	if err := m.store.MarkMemorized(ctx, upTo); err != nil {
		return fmt.Errorf("mark memorized: %w", err)
	}
	m.markHistory(upTo, func(b *events.BaseEvent) **float64 { return &b.MemorizedAt })
	return nil
}

func (m *Manager) markHistory(upTo float64, field func(*events.BaseEvent) **float64) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	for _, evt := range m.history {
		b := evt.Base()
		if b.ProcessedAt > upTo {
			continue
		}
		if p := field(b); *p == nil {
			v := upTo
			*p = &v
		}
	}
}
