package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/npratt/wingman/internal/config"
	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
	"github.com/npratt/wingman/internal/projection"
	"github.com/npratt/wingman/internal/store"
	"github.com/npratt/wingman/internal/testutil"
)

var dockedAt = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

// testDaemonEnv serves a real manager over the socket.
type testDaemonEnv struct {
	t       *testing.T
	cfg     *config.Config
	manager *eventmanager.Manager
	daemon  *Daemon
	client  *Client
	stops   chan struct{}
}

func newTestDaemonEnv(t *testing.T) *testDaemonEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.Socket = shortSocketPath(t)

	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })

	m := eventmanager.New(st,
		eventmanager.WithLogger(discardLogger()),
		eventmanager.WithProcessInterval(10*time.Millisecond))
	for _, p := range projection.Defaults(cfg.Projections) {
		if err := m.RegisterProjection(context.Background(), p, true); err != nil {
			t.Fatalf("RegisterProjection(%s): %v", p.Name(), err)
		}
	}

	env := &testDaemonEnv{
		t:       t,
		cfg:     cfg,
		manager: m,
		client:  NewClient(cfg.Paths.Socket),
		stops:   make(chan struct{}, 1),
	}
	env.daemon = New(cfg, m, func() { env.stops <- struct{}{} }, discardLogger())
	return env
}

// start runs the manager loop and the daemon until the test ends.
func (e *testDaemonEnv) start() <-chan error {
	ctx, cancel := context.WithCancel(context.Background())
	e.t.Cleanup(cancel)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = e.manager.Run(ctx)
	}()
	e.t.Cleanup(func() {
		cancel()
		<-runDone
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.daemon.Start(ctx)
	}()
	waitForSocket(e.t, e.cfg.Paths.Socket, 2*time.Second)
	return errCh
}

func TestDaemonIntegration_StatusListsProjections(t *testing.T) {
	env := newTestDaemonEnv(t)
	env.start()

	status, err := env.client.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if status.Status != "running" {
		t.Errorf("expected status 'running', got %q", status.Status)
	}
	if len(status.Projections) != 8 {
		t.Errorf("expected 8 projections, got %v", status.Projections)
	}
	if status.Stats.Projections != 8 {
		t.Errorf("expected stats.projections 8, got %d", status.Stats.Projections)
	}
}

func TestDaemonIntegration_EmitUpdatesState(t *testing.T) {
	env := newTestDaemonEnv(t)
	env.start()

	if err := env.client.Emit(map[string]any{"event": "TwitchFollow", "user": "cmdr_jameson"}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}

	testutil.Eventually(t, 2*time.Second, func() bool {
		states, err := env.client.State(projection.NameEventCounter)
		if err != nil {
			return false
		}
		var counter projection.CounterState
		if err := json.Unmarshal(states[projection.NameEventCounter], &counter); err != nil {
			return false
		}
		return counter.ByKind[string(events.KindExternal)] == 1
	}, "external event counted")

	evts, err := env.client.Events(10, 0)
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(evts) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evts))
	}
	if evts[0].Kind() != events.KindExternal || events.Name(evts[0]) != "TwitchFollow" {
		t.Errorf("unexpected event %+v", evts[0])
	}

	later, err := env.client.Events(10, evts[0].Base().ProcessedAt)
	if err != nil {
		t.Fatalf("Events(after) error: %v", err)
	}
	if len(later) != 0 {
		t.Errorf("expected no events after the last one, got %d", len(later))
	}
}

func TestDaemonIntegration_WaitSeesDocking(t *testing.T) {
	env := newTestDaemonEnv(t)
	env.start()

	type result struct {
		state json.RawMessage
		err   error
	}
	done := make(chan result, 1)
	go func() {
		st, err := env.client.Wait(projection.NameDockingState, "docked", true, 2*time.Second)
		done <- result{st, err}
	}()

	// Let the wait register before the event lands.
	time.Sleep(50 * time.Millisecond)
	env.manager.AddGameEvent(testutil.JournalEntry("Docked", dockedAt, map[string]any{
		"StationName": "Galileo",
		"StationType": "Ocellus",
	}))

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("Wait() error: %v", r.err)
		}
		var st projection.DockingStateData
		if err := json.Unmarshal(r.state, &st); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if !st.Docked || st.StationName != "Galileo" {
			t.Errorf("unexpected docking state %+v", st)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("wait did not return")
	}
}

func TestDaemonIntegration_WaitTimeout(t *testing.T) {
	env := newTestDaemonEnv(t)
	env.start()

	_, err := env.client.Wait(projection.NameDockingState, "docked", true, 100*time.Millisecond)
	if !errors.Is(err, eventmanager.ErrConditionTimeout) {
		t.Errorf("expected ErrConditionTimeout, got %v", err)
	}
}

func TestDaemonIntegration_UnknownProjection(t *testing.T) {
	env := newTestDaemonEnv(t)
	env.start()

	_, err := env.client.State("Nope")
	if !errors.Is(err, eventmanager.ErrProjectionNotFound) {
		t.Errorf("expected ErrProjectionNotFound, got %v", err)
	}
}

func TestDaemonIntegration_ClearHistory(t *testing.T) {
	env := newTestDaemonEnv(t)
	env.start()

	env.manager.AddGameEvent(testutil.JournalEntry("Docked", dockedAt, map[string]any{"StationName": "Galileo"}))
	testutil.Eventually(t, 2*time.Second, func() bool {
		return env.manager.Stats().History == 1
	}, "event processed")

	if err := env.client.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory() error: %v", err)
	}

	evts, err := env.client.Events(10, 0)
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if len(evts) != 0 {
		t.Errorf("expected empty history, got %d events", len(evts))
	}

	docking, err := eventmanager.StateOf[projection.DockingStateData](env.manager, projection.NameDockingState)
	if err != nil {
		t.Fatalf("StateOf: %v", err)
	}
	if docking.Docked {
		t.Error("docking state should be reset")
	}
}

func TestDaemonIntegration_GracefulStop(t *testing.T) {
	env := newTestDaemonEnv(t)
	errCh := env.start()

	if err := env.client.Stop(false); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	select {
	case <-env.stops:
	case <-time.After(time.Second):
		t.Error("onStop was not called")
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for daemon to stop")
	}

	if env.daemon.Running() {
		t.Error("daemon should not be running after stop")
	}
	if env.client.IsRunning() {
		t.Error("client should not reach a stopped daemon")
	}
}

func TestDaemonIntegration_ForceStop(t *testing.T) {
	env := newTestDaemonEnv(t)
	errCh := env.start()

	start := time.Now()
	if err := env.client.Stop(true); err != nil {
		t.Fatalf("Stop(force) error: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
		if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
			t.Errorf("force stop took too long: %v", elapsed)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for daemon to stop")
	}
}
