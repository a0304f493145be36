package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateBufferSize is the recommended buffer size for state sink subscriptions.
const StateBufferSize = 1000

// CurrentStateVersion is the current state file format version.
// Increment this when making incompatible changes to StateFile.
const CurrentStateVersion = 1

// StateFile is the on-disk form of the latest projection states, consumed by
// external overlays.
type StateFile struct {
	Version     int                        `json:"version"`
	LastEvent   string                     `json:"last_event,omitempty"`
	ProcessedAt float64                    `json:"processed_at"`
	Projections map[string]json.RawMessage `json:"projections"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

// DefaultMinSaveDelay is the minimum time between saves.
const DefaultMinSaveDelay = time.Second

// StateSink mirrors projection states to a JSON file whenever they change.
// Writes are debounced and atomic.
type StateSink struct {
	path     string
	state    *StateFile
	dirty    bool
	mu       sync.Mutex
	done     chan struct{}
	lastSave time.Time
	minDelay time.Duration
}

// NewStateSink creates a new StateSink that writes to the specified path.
func NewStateSink(path string) *StateSink {
	return &StateSink{
		path:     path,
		state:    freshStateFile(),
		done:     make(chan struct{}),
		minDelay: DefaultMinSaveDelay,
	}
}

func freshStateFile() *StateFile {
	return &StateFile{
		Version:     CurrentStateVersion,
		Projections: make(map[string]json.RawMessage),
	}
}

// Start ensures the directory exists, loads existing state, and begins
// processing updates.
func (s *StateSink) Start(ctx context.Context, updates <-chan Update) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	if err := s.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load state: %w", err)
	}

	go s.run(ctx, updates)
	return nil
}

func (s *StateSink) run(ctx context.Context, updates <-chan Update) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.flushIfDirty()
			return
		case u, ok := <-updates:
			if !ok {
				s.flushIfDirty()
				return
			}
			s.handleUpdate(u)
		}
	}
}

func (s *StateSink) handleUpdate(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, st := range u.States {
		data, err := json.Marshal(st)
		if err != nil {
			slog.Warn("state sink: cannot encode projection", "projection", name, "error", err)
			continue
		}
		if prev, ok := s.state.Projections[name]; ok && bytes.Equal(prev, data) {
			continue
		}
		s.state.Projections[name] = data
		s.dirty = true
	}
	if u.Event != nil {
		s.state.LastEvent = Name(u.Event)
		s.state.ProcessedAt = u.Event.Base().ProcessedAt
	}

	if s.dirty && time.Since(s.lastSave) >= s.minDelay {
		s.saveUnlocked()
	}
}

func (s *StateSink) saveUnlocked() {
	s.state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "state sink: marshal error: %v\n", err)
		return
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "state sink: write error: %v\n", err)
		return
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		fmt.Fprintf(os.Stderr, "state sink: rename error: %v\n", err)
		return
	}

	s.dirty = false
	s.lastSave = time.Now()
}

func (s *StateSink) flushIfDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		s.saveUnlocked()
	}
}

// Stop waits for the run goroutine to finish. Pending changes are flushed
// before it exits.
func (s *StateSink) Stop() error {
	<-s.done
	return nil
}

// Load reads the state file from disk.
// A corrupted or incompatible file is backed up and replaced by a fresh state.
func (s *StateSink) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var state StateFile
	if err := json.Unmarshal(data, &state); err != nil {
		if backupErr := s.backupStateFile(); backupErr != nil {
			slog.Warn("state file corrupted, failed to backup",
				"path", s.path,
				"error", err,
				"backup_error", backupErr)
		} else {
			slog.Warn("state file corrupted, backed up and starting fresh",
				"path", s.path,
				"error", err)
		}
		s.state = freshStateFile()
		return nil
	}

	if state.Version != CurrentStateVersion {
		if backupErr := s.backupStateFile(); backupErr != nil {
			slog.Warn("incompatible state version, failed to backup",
				"path", s.path,
				"file_version", state.Version,
				"current_version", CurrentStateVersion,
				"backup_error", backupErr)
		} else {
			slog.Warn("incompatible state version, backed up and starting fresh",
				"path", s.path,
				"file_version", state.Version,
				"current_version", CurrentStateVersion)
		}
		s.state = freshStateFile()
		return nil
	}

	if state.Projections == nil {
		state.Projections = make(map[string]json.RawMessage)
	}
	s.state = &state
	return nil
}

// backupStateFile moves the current state file to a .backup file.
// Must be called with s.mu held.
func (s *StateSink) backupStateFile() error {
	return os.Rename(s.path, s.path+".backup")
}

// State returns a copy of the current state.
func (s *StateSink) State() StateFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *s.state
	c.Projections = make(map[string]json.RawMessage, len(s.state.Projections))
	for k, v := range s.state.Projections {
		c.Projections[k] = v
	}
	return c
}

// Path returns the state file path.
func (s *StateSink) Path() string {
	return s.path
}

// SetMinDelay sets the minimum delay between saves (for testing).
func (s *StateSink) SetMinDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minDelay = d
}

// ReadStateFile loads a state file written by a StateSink.
func ReadStateFile(path string) (*StateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var state StateFile
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &state, nil
}
