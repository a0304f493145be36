// Package eventmanager drives the projection engine: it owns the incoming
// event queue, assigns processing times, feeds every event through the
// registered projections, persists events and snapshots, wakes condition
// waiters and fans processed events out to side effects.
package eventmanager

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/npratt/wingman/internal/events"
	"github.com/npratt/wingman/internal/projection"
	"github.com/npratt/wingman/internal/store"
)

const tracerName = "github.com/npratt/wingman/internal/eventmanager"

// Defaults for Manager options.
const (
	DefaultTimerInterval   = 10 * time.Second
	DefaultProcessInterval = time.Second
	DefaultMaxDepth        = 16
)

// States maps projection names to state snapshots.
type States = events.States

// SideEffect is called once per processed live event, after the batch holding
// it has been committed, with the projection states as they were right after
// the event was applied. Errors are logged and never abort processing.
type SideEffect func(evt events.Event, states States) error

// projectionEntry is a registered projection and its current state.
type projectionEntry struct {
	proj          projection.Projection
	state         any
	lastProcessed float64
}

func (e *projectionEntry) name() string {
	return e.proj.Name()
}

// Manager is the event manager. All methods are safe for concurrent use.
//
// Lock order: procMu, then stateMu, then the condition registry. Waiters
// never take procMu.
type Manager struct {
	store  store.Store
	logger *slog.Logger
	clock  func() time.Time
	tracer trace.Tracer

	timerInterval   time.Duration
	processInterval time.Duration
	maxDepth        int

	// procMu serializes every operation that changes projection state.
	procMu        sync.Mutex
	lastProcessed float64

	// stateMu guards projections, byName, each entry's state and the history.
	stateMu     sync.RWMutex
	projections []*projectionEntry
	byName      map[string]*projectionEntry
	history     []events.Event

	queueMu sync.Mutex
	queue   []events.Event
	signal  chan struct{}

	effectsMu   sync.RWMutex
	sideEffects []SideEffect

	conditions *conditionRegistry
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now as the source of processing times.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithTimerInterval sets how often Run ticks timer-capable projections.
func WithTimerInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timerInterval = d
		}
	}
}

// WithProcessInterval sets how often Run drains the queue without an
// enqueue signal.
func WithProcessInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.processInterval = d
		}
	}
}

// WithMaxDepth bounds the recursion of projected events producing further
// projected events.
func WithMaxDepth(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxDepth = n
		}
	}
}

// WithTracer sets the tracer used for processing spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// New creates a Manager backed by st.
func New(st store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:           st,
		logger:          slog.Default(),
		clock:           time.Now,
		tracer:          otel.Tracer(tracerName),
		timerInterval:   DefaultTimerInterval,
		processInterval: DefaultProcessInterval,
		maxDepth:        DefaultMaxDepth,
		byName:          make(map[string]*projectionEntry),
		signal:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "eventmanager")
	m.conditions = newConditionRegistry(m.logger)
	return m
}

// enqueue stamps evt with the manager clock, appends it to the incoming
// queue and signals Run. Game events keep their journal timestamp.
func (m *Manager) enqueue(evt events.Event) {
	if g, ok := evt.(*events.GameEvent); !ok || g.Content["timestamp"] == nil {
		evt.Base().Timestamp = events.FormatTimestamp(m.clock())
	}

	m.queueMu.Lock()
	m.queue = append(m.queue, evt)
	m.queueMu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// takeQueue removes and returns everything queued so far.
func (m *Manager) takeQueue() []events.Event {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	batch := m.queue
	m.queue = nil
	return batch
}

// AddGameEvent queues a live journal entry.
func (m *Manager) AddGameEvent(content map[string]any) {
	m.enqueue(events.NewGameEvent(content, false))
}

// AddStatusEvent queues a status snapshot or status change.
func (m *Manager) AddStatusEvent(status map[string]any) {
	m.enqueue(events.NewStatusEvent(status))
}

// AddConversationEvent queues a user or assistant utterance.
func (m *Manager) AddConversationEvent(kind events.ConversationKind, content string, reasons ...string) {
	m.enqueue(events.NewConversationEvent(kind, content, reasons...))
}

// AddAssistantCompleteEvent queues the marker for a finished assistant turn.
func (m *Manager) AddAssistantCompleteEvent() {
	m.enqueue(events.NewConversationEvent(events.KindAssistantCompleted, ""))
}

// AddToolCall queues a batch of tool invocations and their results.
func (m *Manager) AddToolCall(request, results []map[string]any, text []string) {
	m.enqueue(events.NewToolEvent(request, results, text))
}

// AddMemoryEvent queues a long-term memory entry.
func (m *Manager) AddMemoryEvent(content string, metadata map[string]any, embedding []float32) {
	m.enqueue(events.NewMemoryEvent(content, metadata, embedding))
}

// AddExternalEvent queues an event injected by an outside integration.
func (m *Manager) AddExternalEvent(content map[string]any) {
	m.enqueue(events.NewExternalEvent(content))
}

// RegisterSideEffect adds a callback invoked for every processed live event.
// Side effects run while processing is serialized: they may queue new events
// but must not call Process or ProcessTimerTick.
func (m *Manager) RegisterSideEffect(fn SideEffect) {
	m.effectsMu.Lock()
	defer m.effectsMu.Unlock()
	m.sideEffects = append(m.sideEffects, fn)
}

func (m *Manager) hasSideEffects() bool {
	m.effectsMu.RLock()
	defer m.effectsMu.RUnlock()
	return len(m.sideEffects) > 0
}

// runSideEffects hands each applied event to every side effect in order.
func (m *Manager) runSideEffects(applied []appliedEvent) {
	if len(applied) == 0 {
		return
	}
	m.effectsMu.RLock()
	fns := slices.Clone(m.sideEffects)
	m.effectsMu.RUnlock()

	for _, a := range applied {
		for i, fn := range fns {
			m.callSideEffect(i, fn, a)
		}
	}
}

func (m *Manager) callSideEffect(index int, fn SideEffect, a appliedEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("side effect panicked",
				"side_effect", index,
				"event", events.Name(a.event),
				"error", panicError(r))
		}
	}()
	if err := fn(a.event, a.states); err != nil {
		m.logger.Error("side effect failed",
			"side_effect", index,
			"event", events.Name(a.event),
			"error", err)
	}
}

// now returns the current clock reading as epoch seconds.
func (m *Manager) now() float64 {
	return events.EpochSeconds(m.clock())
}

// nextProcessedAt returns a processing time that never runs backwards.
// Must be called with procMu held.
func (m *Manager) nextProcessedAt() float64 {
	ts := max(m.now(), m.lastProcessed)
	m.lastProcessed = ts
	return ts
}

// snapshotStates clones every projection state.
func (m *Manager) snapshotStates() States {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	states := make(States, len(m.projections))
	for _, e := range m.projections {
		states[e.name()] = e.proj.Clone(e.state)
	}
	return states
}

// appendHistory records evt in the in-memory history, keeping it ordered by
// processing time.
func (m *Manager) appendHistory(evt events.Event) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	pa := evt.Base().ProcessedAt
	n := len(m.history)
	if n == 0 || m.history[n-1].Base().ProcessedAt <= pa {
		m.history = append(m.history, evt)
		return
	}
	i, _ := slices.BinarySearchFunc(m.history, pa, func(h events.Event, t float64) int {
		if h.Base().ProcessedAt <= t {
			return -1
		}
		return 1
	})
	m.history = slices.Insert(m.history, i, evt)
}
