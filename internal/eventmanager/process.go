package eventmanager

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/npratt/wingman/internal/events"
	"github.com/npratt/wingman/internal/projection"
	"github.com/npratt/wingman/internal/store"
)

// appliedEvent pairs an event with the states right after it was applied.
type appliedEvent struct {
	event  events.Event
	states States
}

// batch accumulates the effects of one processing pass.
type batch struct {
	tx store.Tx
	// persist appends events to tx. Every dispatched event joins the
	// in-memory history either way.
	persist bool
	// collect records applied events for side effects.
	collect bool
	dirty   map[string]bool
	applied []appliedEvent
	count   int
}

func (m *Manager) newBatch(tx store.Tx, persist bool) *batch {
	return &batch{
		tx:      tx,
		persist: persist,
		collect: persist && m.hasSideEffects(),
		dirty:   make(map[string]bool),
	}
}

// Process drains the queue. Each event gets a processing time, is appended
// to the event log and is fed through every projection; projected events
// produced along the way are dispatched recursively. The pass commits once,
// after which side effects fire. It returns the resulting states, or false
// when the queue was empty.
func (m *Manager) Process(ctx context.Context) (States, bool, error) {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	queued := m.takeQueue()
	if len(queued) == 0 {
		return nil, false, nil
	}

	ctx, span := m.tracer.Start(ctx, "eventmanager.process",
		trace.WithAttributes(attribute.Int("eventmanager.events.queued", len(queued))),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	b, err := m.runBatch(ctx, func(b *batch) error {
		targets := m.projectionsLocked()
		for _, evt := range queued {
			evt.Base().ProcessedAt = m.nextProcessedAt()
			if err := m.dispatch(b, evt, targets, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if b != nil {
		span.SetAttributes(attribute.Int("eventmanager.events.applied", b.count))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	span.SetStatus(codes.Ok, "")

	m.runSideEffects(b.applied)
	return m.snapshotStates(), true, nil
}

// ProcessTimerTick runs the time-based transitions of every timer-capable
// projection at a single tick time. Timer transitions do not advance
// last_processed; projected events they produce carry the tick time.
func (m *Manager) ProcessTimerTick(ctx context.Context) error {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	ctx, span := m.tracer.Start(ctx, "eventmanager.timer_tick",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	tick := max(m.now(), m.lastProcessed)
	now := events.EpochTime(tick)

	b, err := m.runBatch(ctx, func(b *batch) error {
		targets := m.projectionsLocked()
		var derived []*events.ProjectedEvent
		for _, e := range targets {
			if !e.proj.HasTimer() {
				continue
			}
			derived = append(derived, m.updateTimer(b, e, now)...)
		}
		if len(derived) > 0 {
			m.lastProcessed = tick
		}
		for _, d := range derived {
			d.ProcessedAt = tick
			if err := m.dispatch(b, d, targets, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if b != nil {
		span.SetAttributes(attribute.Int("eventmanager.events.applied", b.count))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")

	m.runSideEffects(b.applied)
	return nil
}

// AddHistoricGameEvents replays journal entries recorded before this run.
// Each entry's processing time is its journal timestamp, capped at the
// current clock. Entries already covered by every projection are discarded;
// the rest are fed to the projections that have not yet seen them and kept
// in the in-memory history together with the projected events they produce,
// which are flagged historic too. Historic entries are never written to the
// event log and never reach side effects. It returns the number of entries
// replayed.
func (m *Manager) AddHistoricGameEvents(ctx context.Context, contents []map[string]any) (int, error) {
	m.procMu.Lock()
	defer m.procMu.Unlock()

	replayed := 0
	_, err := m.runBatch(ctx, func(b *batch) error {
		now := m.now()
		for _, content := range contents {
			evt := events.NewGameEvent(content, true)
			ts, err := events.ParseTimestamp(evt.Timestamp)
			if err != nil {
				m.logger.Warn("skipping historic event without valid timestamp",
					"event", events.Name(evt),
					"timestamp", evt.Timestamp)
				continue
			}
			pa := min(events.EpochSeconds(ts), now)
			evt.ProcessedAt = pa

			targets := m.pendingFor(pa)
			if targets == nil {
				continue
			}
			if err := m.dispatch(b, evt, targets, 0); err != nil {
				return err
			}
			m.lastProcessed = max(m.lastProcessed, pa)
			replayed++
		}
		return nil
	}, withoutPersistence())
	if err != nil {
		return replayed, err
	}
	if replayed > 0 {
		m.logger.Debug("historic events replayed", "count", replayed, "received", len(contents))
	}
	return replayed, nil
}

// pendingFor returns the projections whose last_processed is before pa. It
// returns nil when every registered projection already covers pa and an
// empty slice when no projection is registered. Must be called with procMu
// held.
func (m *Manager) pendingFor(pa float64) []*projectionEntry {
	all := m.projectionsLocked()
	if len(all) == 0 {
		return []*projectionEntry{}
	}
	var out []*projectionEntry
	for _, e := range all {
		if pa > e.lastProcessed {
			out = append(out, e)
		}
	}
	return out
}

type batchOption func(*batch)

func withoutPersistence() batchOption {
	return func(b *batch) {
		b.persist = false
		b.collect = false
	}
}

// runBatch opens a transaction, runs fn, saves changed snapshots and commits.
// Must be called with procMu held.
func (m *Manager) runBatch(ctx context.Context, fn func(*batch) error, opts ...batchOption) (*batch, error) {
	tx, err := m.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	b := m.newBatch(tx, true)
	for _, opt := range opts {
		opt(b)
	}

	if err := fn(b); err != nil {
		_ = tx.Rollback()
		return b, err
	}
	if err := m.saveDirty(b); err != nil {
		_ = tx.Rollback()
		return b, err
	}
	if err := tx.Commit(); err != nil {
		return b, fmt.Errorf("commit: %w", err)
	}
	return b, nil
}

// projectionsLocked returns the registered projections. Must be called with
// procMu held; the slice is only replaced under procMu.
func (m *Manager) projectionsLocked() []*projectionEntry {
	return m.projections
}

// dispatch applies evt to targets, then recursively dispatches the projected
// events they produced. Must be called with procMu held.
func (m *Manager) dispatch(b *batch, evt events.Event, targets []*projectionEntry, depth int) error {
	if b.persist {
		if err := b.tx.AppendEvent(evt); err != nil {
			return fmt.Errorf("append %s: %w", events.Name(evt), err)
		}
	}
	m.appendHistory(evt)
	b.count++

	var derived []*events.ProjectedEvent
	for _, e := range targets {
		derived = append(derived, m.updateProjection(b, e, evt)...)
	}

	if b.collect && !events.IsHistoric(evt) {
		b.applied = append(b.applied, appliedEvent{
			event:  events.Clone(evt),
			states: m.snapshotStates(),
		})
	}

	if len(derived) > 0 && depth >= m.maxDepth {
		m.logger.Warn("projected event recursion limit reached, dropping derived events",
			"event", events.Name(evt),
			"depth", depth,
			"dropped", len(derived))
		return nil
	}
	historic := events.IsHistoric(evt)
	for _, d := range derived {
		if d == nil {
			continue
		}
		d.ProcessedAt = evt.Base().ProcessedAt
		d.Historic = historic
		if err := m.dispatch(b, d, targets, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// updateProjection runs one reducer. A failing reducer keeps its previous
// state. Must be called with procMu held.
func (m *Manager) updateProjection(b *batch, e *projectionEntry, evt events.Event) []*events.ProjectedEvent {
	pa := evt.Base().ProcessedAt
	if pa < e.lastProcessed {
		m.logger.Warn("projection running backwards in time",
			"projection", e.name(),
			"event", events.Name(evt),
			"processed_at", pa,
			"last_processed", e.lastProcessed)
	}

	next, derived, err := safeProcess(e.proj, e.state, evt)
	if err != nil {
		m.logger.Error("projection failed", "error", &ProjectionError{
			Projection: e.name(),
			EventKind:  evt.Kind(),
			Event:      events.Name(evt),
			Err:        err,
		})
		return nil
	}

	m.stateMu.Lock()
	e.state = next
	e.lastProcessed = max(e.lastProcessed, pa)
	m.stateMu.Unlock()

	b.dirty[e.name()] = true
	m.conditions.notify(e.name(), next, e.proj.Clone)
	return tagSource(e, derived)
}

// updateTimer runs one timer transition. Must be called with procMu held.
func (m *Manager) updateTimer(b *batch, e *projectionEntry, now time.Time) []*events.ProjectedEvent {
	next, derived, err := safeTimer(e.proj, e.state, now)
	if err != nil {
		m.logger.Error("projection timer failed", "error", &ProjectionError{
			Projection: e.name(),
			Event:      "timer",
			Err:        err,
		})
		return nil
	}

	m.stateMu.Lock()
	e.state = next
	m.stateMu.Unlock()

	b.dirty[e.name()] = true
	m.conditions.notify(e.name(), next, e.proj.Clone)
	return tagSource(e, derived)
}

func tagSource(e *projectionEntry, derived []*events.ProjectedEvent) []*events.ProjectedEvent {
	for _, d := range derived {
		if d != nil {
			d.Source = e.name()
		}
	}
	return derived
}

// saveDirty writes a snapshot of every projection changed during the batch.
func (m *Manager) saveDirty(b *batch) error {
	for _, e := range m.projectionsLocked() {
		if !b.dirty[e.name()] {
			continue
		}
		if err := m.saveRecord(b.tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) saveRecord(tx store.Tx, e *projectionEntry) error {
	data, err := e.proj.Encode(e.state)
	if err != nil {
		m.logger.Error("cannot encode projection state", "projection", e.name(), "error", err)
		return nil
	}
	rec := store.Record{
		Name:          e.name(),
		State:         data,
		SchemaVersion: e.proj.SchemaVersion(),
		LastProcessed: e.lastProcessed,
		UpdatedAt:     m.clock(),
	}
	if err := tx.SaveProjection(rec); err != nil {
		return fmt.Errorf("save projection %s: %w", e.name(), err)
	}
	return nil
}

func safeProcess(p projection.Projection, state any, evt events.Event) (next any, derived []*events.ProjectedEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, derived, err = state, nil, panicError(r)
		}
	}()
	return p.Process(state, evt)
}

func safeTimer(p projection.Projection, state any, now time.Time) (next any, derived []*events.ProjectedEvent, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, derived, err = state, nil, panicError(r)
		}
	}()
	return p.ProcessTimer(state, now)
}
