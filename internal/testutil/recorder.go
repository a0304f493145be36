package testutil

import (
	"sync"

	"github.com/npratt/wingman/internal/events"
)

// Call is one recorded side effect invocation.
type Call struct {
	Event  events.Event
	States events.States
}

// Recorder records side effect invocations for later assertion.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// SideEffect records the call and returns r.Err. Its signature matches the
// event manager's side effect callback.
func (r *Recorder) SideEffect(evt events.Event, states events.States) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Event: evt, States: states})
	return r.Err
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Names returns the event name of every recorded call in order.
func (r *Recorder) Names() []string {
	calls := r.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = events.Name(c.Event)
	}
	return names
}

// Reset clears the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
