package eventmanager

import (
	"bytes"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/npratt/wingman/internal/events"
)

func TestUpdateProjection_OutOfOrderEventStillApplies(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m, _, clock := newTestManager(t, WithLogger(logger))
	mustRegister(t, m, newSeen("seen"))

	clock.Advance(time.Minute)
	m.AddGameEvent(game("Current"))
	mustProcess(t, m)

	m.procMu.Lock()
	e := m.byName["seen"]
	before := e.lastProcessed
	late := events.NewGameEvent(game("Late"), false)
	late.ProcessedAt = before - 30
	m.updateProjection(m.newBatch(nil, false), e, late)
	after := e.lastProcessed
	m.procMu.Unlock()

	if !strings.Contains(logs.String(), "projection running backwards in time") {
		t.Errorf("no causal-order warning logged:\n%s", logs.String())
	}
	if got := seenNames(t, m, "seen"); !slices.Equal(got, []string{"Current", "Late"}) {
		t.Errorf("seen = %v, want the late event applied", got)
	}
	if after != before {
		t.Errorf("last_processed = %v, want it held at %v", after, before)
	}
}
