package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/npratt/wingman/internal/events"
)

// Memory is an in-process Store with the same semantics as SQLite. Events
// are stored encoded so callers never share memory with the store.
type Memory struct {
	mu          sync.RWMutex
	log         []storedEvent
	projections map[string]Record
	ids         *idSource
	closed      bool
}

type storedEvent struct {
	class       events.Class
	data        []byte
	processedAt float64
	respondedAt *float64
	memorizedAt *float64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		projections: make(map[string]Record),
		ids:         newIDSource(),
	}
}

func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Memory) checkOpen() error {
	if s.closed {
		return fmt.Errorf("memory store closed")
	}
	return nil
}

func (s *Memory) Begin(ctx context.Context) (Tx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return &memoryTx{store: s}, nil
}

func (s *Memory) decode(se storedEvent) (events.Event, error) {
	evt, err := events.Decode(se.class, se.data)
	if err != nil {
		return nil, err
	}
	base := evt.Base()
	base.RespondedAt = copyFloat(se.respondedAt)
	base.MemorizedAt = copyFloat(se.memorizedAt)
	return evt, nil
}

func (s *Memory) LatestEvents(ctx context.Context, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var out []events.Event
	for i := len(s.log) - 1; i >= 0 && len(out) < limit; i-- {
		if s.log[i].memorizedAt != nil {
			continue
		}
		evt, err := s.decode(s.log[i])
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Memory) ReplayEvents(ctx context.Context, after float64, fn func(events.Event) error) error {
	s.mu.RLock()
	if err := s.checkOpen(); err != nil {
		s.mu.RUnlock()
		return err
	}
	snapshot := make([]storedEvent, len(s.log))
	copy(snapshot, s.log)
	s.mu.RUnlock()

	for _, se := range snapshot {
		if se.processedAt <= after {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		evt, err := s.decode(se)
		if err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Memory) MarkResponded(ctx context.Context, upTo float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for i := range s.log {
		if s.log[i].processedAt <= upTo && s.log[i].respondedAt == nil {
			s.log[i].respondedAt = copyFloat(&upTo)
		}
	}
	return nil
}

func (s *Memory) MarkMemorized(ctx context.Context, upTo float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	for i := range s.log {
		if s.log[i].processedAt <= upTo && s.log[i].memorizedAt == nil {
			s.log[i].memorizedAt = copyFloat(&upTo)
		}
	}
	return nil
}

func (s *Memory) LoadProjection(ctx context.Context, name string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return Record{}, err
	}
	rec, ok := s.projections[name]
	if !ok {
		return Record{}, fmt.Errorf("projection %q: %w", name, ErrNotFound)
	}
	rec.State = append([]byte(nil), rec.State...)
	return rec, nil
}

func (s *Memory) DeleteProjection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	delete(s.projections, name)
	return nil
}

func (s *Memory) ClearHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.log = nil
	s.projections = make(map[string]Record)
	return nil
}

// Len returns the number of stored events.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// memoryTx buffers writes until Commit.
type memoryTx struct {
	store   *Memory
	pending []storedEvent
	records []Record
	done    bool
}

func (t *memoryTx) AppendEvent(evt events.Event) error {
	if t.done {
		return ErrTxDone
	}
	base := evt.Base()
	if base.ID == "" {
		base.ID = t.store.ids.newID()
	}
	class, data, err := events.Encode(evt)
	if err != nil {
		return err
	}
	t.pending = append(t.pending, storedEvent{
		class:       class,
		data:        data,
		processedAt: base.ProcessedAt,
		respondedAt: copyFloat(base.RespondedAt),
		memorizedAt: copyFloat(base.MemorizedAt),
	})
	return nil
}

func (t *memoryTx) SaveProjection(rec Record) error {
	if t.done {
		return ErrTxDone
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	rec.State = append([]byte(nil), rec.State...)
	t.records = append(t.records, rec)
	return nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.log = append(s.log, t.pending...)
	for _, rec := range t.records {
		s.projections[rec.Name] = rec
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	t.done = true
	t.pending = nil
	t.records = nil
	return nil
}
