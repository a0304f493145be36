package eventmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/npratt/wingman/internal/events"
	"github.com/npratt/wingman/internal/projection"
	"github.com/npratt/wingman/internal/store"
	"github.com/npratt/wingman/internal/testutil"
)

var testStart = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *store.Memory, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(testStart)
	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })
	base := []Option{WithClock(clock.Now), WithLogger(discardLogger())}
	return New(st, append(base, opts...)...), st, clock
}

func mustRegister(t *testing.T, m *Manager, ps ...projection.Projection) {
	t.Helper()
	for _, p := range ps {
		if err := m.RegisterProjection(context.Background(), p, true); err != nil {
			t.Fatalf("RegisterProjection(%s) failed: %v", p.Name(), err)
		}
	}
}

func mustProcess(t *testing.T, m *Manager) States {
	t.Helper()
	states, ok, err := m.Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !ok {
		t.Fatal("Process reported an empty queue")
	}
	return states
}

func game(name string) map[string]any {
	return map[string]any{"event": name}
}

// seenState lists the names of every event a projection has seen.
type seenState struct {
	Names []string `json:"names"`
}

type seen struct{}

func (seen) DefaultState() seenState { return seenState{} }

func (seen) Process(s seenState, evt events.Event) (seenState, []*events.ProjectedEvent, error) {
	s.Names = append(slices.Clone(s.Names), events.Name(evt))
	return s, nil, nil
}

func newSeen(name string) projection.Projection {
	return projection.New(name, 1, seen{})
}

func seenNames(t *testing.T, m *Manager, name string) []string {
	t.Helper()
	s, err := StateOf[seenState](m, name)
	if err != nil {
		t.Fatalf("StateOf(%s) failed: %v", name, err)
	}
	return s.Names
}

// emitter emits a projected event named emit whenever it sees on.
type emitterState struct {
	Emitted int `json:"emitted"`
}

type emitter struct {
	on   string
	emit string
}

func (emitter) DefaultState() emitterState { return emitterState{} }

func (e emitter) Process(s emitterState, evt events.Event) (emitterState, []*events.ProjectedEvent, error) {
	if events.Name(evt) != e.on {
		return s, nil, nil
	}
	s.Emitted++
	return s, []*events.ProjectedEvent{events.NewProjectedEvent(map[string]any{"event": e.emit})}, nil
}

// faulty fails (or panics) on events named "Boom" and counts the rest.
type faultyState struct {
	Seen int `json:"seen"`
}

type faulty struct {
	panics bool
}

func (faulty) DefaultState() faultyState { return faultyState{} }

func (f faulty) Process(s faultyState, evt events.Event) (faultyState, []*events.ProjectedEvent, error) {
	if events.Name(evt) == "Boom" {
		if f.panics {
			panic("reducer exploded")
		}
		return s, nil, errors.New("reducer failed")
	}
	s.Seen++
	return s, nil, nil
}

// ticker counts timer ticks and emits "Tick" on each.
type tickerState struct {
	Ticks    int    `json:"ticks"`
	LastTick string `json:"last_tick"`
}

type ticker struct{}

func (ticker) DefaultState() tickerState { return tickerState{} }

func (ticker) Process(s tickerState, _ events.Event) (tickerState, []*events.ProjectedEvent, error) {
	return s, nil, nil
}

func (ticker) ProcessTimer(s tickerState, now time.Time) (tickerState, []*events.ProjectedEvent, error) {
	s.Ticks++
	s.LastTick = events.FormatTimestamp(now)
	return s, []*events.ProjectedEvent{events.NewProjectedEvent(map[string]any{"event": "Tick"})}, nil
}

// failingStore wraps a store and injects commit and clear failures.
type failingStore struct {
	store.Store
	commitErr error
	clearErr  error
}

func (s *failingStore) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingTx{Tx: tx, err: s.commitErr}, nil
}

func (s *failingStore) ClearHistory(ctx context.Context) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	return s.Store.ClearHistory(ctx)
}

type failingTx struct {
	store.Tx
	err error
}

func (t *failingTx) Commit() error {
	if t.err != nil {
		_ = t.Tx.Rollback()
		return t.err
	}
	return t.Tx.Commit()
}

func processedAts(evts []events.Event) []float64 {
	out := make([]float64, len(evts))
	for i, e := range evts {
		out[i] = e.Base().ProcessedAt
	}
	return out
}

func describe(evts []events.Event) string {
	names := make([]string, len(evts))
	for i, e := range evts {
		names[i] = fmt.Sprintf("%s@%.3f", events.Name(e), e.Base().ProcessedAt)
	}
	return fmt.Sprint(names)
}
