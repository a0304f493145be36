// Package journal tails the game's journal directory and Status.json file and
// hands their entries to the event manager.
package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	journalPrefix = "Journal."
	journalSuffix = ".log"

	// debounceInterval is the time to wait for rapid file changes to settle.
	debounceInterval = 100 * time.Millisecond

	// pollInterval re-checks the files when the platform drops write
	// notifications for files held open by another process.
	pollInterval = time.Second

	// warningInterval is the minimum time between repeated warnings.
	warningInterval = 5 * time.Second
)

// ErrNoJournal is returned when the journal directory holds no journal files.
var ErrNoJournal = errors.New("no journal files")

// ErrMissingEventName is returned for entries without an "event" field.
var ErrMissingEventName = errors.New("entry has no event name")

// Ingestor receives parsed entries. *eventmanager.Manager satisfies it.
type Ingestor interface {
	AddGameEvent(content map[string]any)
	AddHistoricGameEvents(ctx context.Context, contents []map[string]any) (int, error)
	AddStatusEvent(status map[string]any)
}

// ParseLine parses a single journal line.
// Returns nil, nil for blank lines.
// Returns nil, error for invalid JSON or an entry with no event name.
func ParseLine(line []byte) (map[string]any, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}

	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, err
	}
	if name, _ := entry["event"].(string); name == "" {
		return nil, ErrMissingEventName
	}
	return entry, nil
}

// IsJournalFile reports whether name looks like a journal file.
func IsJournalFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, journalPrefix) && strings.HasSuffix(base, journalSuffix)
}

// LatestJournal returns the most recently modified journal file in dir.
// Ties are broken by name, which embeds the session start time.
func LatestJournal(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var (
		latest  string
		latestT time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !IsJournalFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		mt := info.ModTime()
		if latest == "" || mt.After(latestT) || (mt.Equal(latestT) && e.Name() > filepath.Base(latest)) {
			latest = filepath.Join(dir, e.Name())
			latestT = mt
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%s: %w", dir, ErrNoJournal)
	}
	return latest, nil
}

// laterSession reports whether journal a was started after journal b. Journal
// names embed the session start time, so they sort chronologically.
func laterSession(a, b string) bool {
	return filepath.Base(a) > filepath.Base(b)
}
