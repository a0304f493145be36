package events

import (
	"log/slog"
	"sync"
)

// States maps projection names to state snapshots.
type States map[string]any

// Update is one processed event together with the projection states as they
// stood right after it was applied.
type Update struct {
	Event  Event
	States States
}

// DefaultBufferSize is the default channel buffer size for subscribers.
const DefaultBufferSize = 100

// subscriberEntry holds a subscriber channel and its metadata.
type subscriberEntry struct {
	ch chan Update
}

// Router fans processed updates out to observers such as the TUI and the
// sinks. Producers emit, consumers subscribe.
type Router struct {
	subscribers []subscriberEntry
	bufferSize  int
	mu          sync.RWMutex
	closed      bool
}

// NewRouter creates a new event router with the specified default buffer size.
// If bufferSize is 0 or negative, DefaultBufferSize is used.
func NewRouter(bufferSize int) *Router {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Router{
		bufferSize: bufferSize,
	}
}

// Emit publishes an update to all subscribers.
// Updates are sent non-blocking: if a subscriber's channel is full, the update
// is dropped and a warning is logged.
// Emit is safe to call concurrently and after Close (becomes a no-op).
func (r *Router) Emit(u Update) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	for _, sub := range r.subscribers {
		select {
		case sub.ch <- u:
		default:
			slog.Warn("update dropped: subscriber channel full",
				"event", Name(u.Event),
				"kind", u.Event.Kind(),
			)
		}
	}
}

// Subscribe returns a channel that receives all emitted updates.
// The channel has the router's default buffer size.
// The returned channel is closed when the router is closed.
func (r *Router) Subscribe() <-chan Update {
	return r.SubscribeBuffered(r.bufferSize)
}

// SubscribeBuffered returns a channel with the specified buffer size.
// Use this for subscribers that need larger buffers to avoid dropped updates.
// The returned channel is closed when the router is closed.
func (r *Router) SubscribeBuffered(size int) <-chan Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		ch := make(chan Update)
		close(ch)
		return ch
	}

	ch := make(chan Update, size)
	r.subscribers = append(r.subscribers, subscriberEntry{ch: ch})
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
// It is safe to call with a channel that was never subscribed or already unsubscribed.
func (r *Router) Unsubscribe(ch <-chan Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subscribers {
		if sub.ch == ch {
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			close(sub.ch)
			return
		}
	}
}

// Close closes all subscriber channels and marks the router as closed.
// Subsequent calls to Emit become no-ops.
// Subsequent calls to Subscribe return closed channels.
// Close is safe to call multiple times.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.closed = true
	for _, sub := range r.subscribers {
		close(sub.ch)
	}
	r.subscribers = nil
}

// SideEffect adapts the router to the manager's side-effect signature.
func (r *Router) SideEffect(evt Event, states States) error {
	r.Emit(Update{Event: evt, States: states})
	return nil
}
