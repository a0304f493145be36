// Package store persists the event log and projection snapshots.
//
// Two logical stores share one backend: an append-only event log keyed by
// insertion order, and a projection snapshot table keyed by projection name.
// Writes produced by a single processing pass go through one Tx so the events
// and the snapshots derived from them commit together.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/npratt/wingman/internal/events"
)

// ErrNotFound is returned when a projection has no persisted record.
var ErrNotFound = errors.New("not found")

// ErrTxDone is returned by operations on a committed or rolled back Tx.
var ErrTxDone = errors.New("transaction already finished")

// Record is the persisted snapshot of one projection.
type Record struct {
	Name          string          `json:"name"`
	State         json.RawMessage `json:"state"`
	SchemaVersion string          `json:"schema_version"`
	LastProcessed float64         `json:"last_processed"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// EventStore is the append-only event log.
type EventStore interface {
	// LatestEvents returns up to limit of the newest non-memorized events,
	// oldest first.
	LatestEvents(ctx context.Context, limit int) ([]events.Event, error)
	// ReplayEvents calls fn for every event with ProcessedAt > after, in
	// insertion order. Returning an error from fn stops the scan.
	ReplayEvents(ctx context.Context, after float64, fn func(events.Event) error) error
	// MarkResponded sets RespondedAt=upTo on unmarked events processed at or
	// before upTo.
	MarkResponded(ctx context.Context, upTo float64) error
	// MarkMemorized sets MemorizedAt=upTo on unmarked events processed at or
	// before upTo.
	MarkMemorized(ctx context.Context, upTo float64) error
}

// ProjectionStore holds projection snapshots keyed by name.
type ProjectionStore interface {
	LoadProjection(ctx context.Context, name string) (Record, error)
	DeleteProjection(ctx context.Context, name string) error
}

// Tx batches event appends and snapshot writes into one commit.
type Tx interface {
	// AppendEvent assigns an ID to evt if it has none and appends it.
	AppendEvent(evt events.Event) error
	// SaveProjection upserts a snapshot.
	SaveProjection(rec Record) error
	Commit() error
	Rollback() error
}

// Store combines both stores with transactional writes.
type Store interface {
	EventStore
	ProjectionStore
	Begin(ctx context.Context) (Tx, error)
	// ClearHistory empties both the event log and the snapshot table. It
	// either fully succeeds or leaves both untouched.
	ClearHistory(ctx context.Context) error
	Close() error
}

// idSource hands out monotonic ULIDs. Safe for concurrent use.
type idSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDSource() *idSource {
	return &idSource{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (s *idSource) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}
