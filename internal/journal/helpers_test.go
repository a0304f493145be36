package journal

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/npratt/wingman/internal/config"
)

// fakeIngestor records everything handed to it.
type fakeIngestor struct {
	mu          sync.Mutex
	live        []map[string]any
	historic    [][]map[string]any
	status      []map[string]any
	historicErr error
}

func (f *fakeIngestor) AddGameEvent(content map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = append(f.live, content)
}

func (f *fakeIngestor) AddHistoricGameEvents(_ context.Context, contents []map[string]any) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historic = append(f.historic, contents)
	if f.historicErr != nil {
		return 0, f.historicErr
	}
	return len(contents), nil
}

func (f *fakeIngestor) AddStatusEvent(status map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = append(f.status, status)
}

func (f *fakeIngestor) liveNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return eventNames(f.live)
}

func (f *fakeIngestor) statusNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return eventNames(f.status)
}

func (f *fakeIngestor) historicBatches() [][]map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]map[string]any(nil), f.historic...)
}

func eventNames(entries []map[string]any) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name, _ := e["event"].(string)
		names = append(names, name)
	}
	return names
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJournalConfig(dir string) config.JournalConfig {
	return config.JournalConfig{
		Enabled:       true,
		Dir:           dir,
		StatusFile:    "Status.json",
		HistoricLimit: 1000,
	}
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func startWatcher(t *testing.T, w interface {
	Start(context.Context) error
	Stop() error
}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
}
