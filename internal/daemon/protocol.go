package daemon

import (
	"encoding/json"

	"github.com/npratt/wingman/internal/eventmanager"
)

// Request represents a JSON-RPC request from a client.
type Request struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
	ID     int    `json:"id,omitempty"`
}

// Response represents a JSON-RPC response to a client.
type Response struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	// Code classifies Error so clients can map it back to a sentinel.
	Code string `json:"code,omitempty"`
	ID   int    `json:"id,omitempty"`
}

// Error codes.
const (
	CodeTimeout  = "timeout"
	CodeNotFound = "not_found"
	CodeInvalid  = "invalid_params"
)

// Methods.
const (
	MethodStatus       = "status"
	MethodState        = "state"
	MethodEvents       = "events"
	MethodEmit         = "emit"
	MethodWait         = "wait"
	MethodClearHistory = "clear_history"
	MethodStop         = "stop"
)

// StatusResponse contains daemon status information.
type StatusResponse struct {
	Status      string             `json:"status"`
	Uptime      string             `json:"uptime"`
	StartTime   string             `json:"start_time"`
	Projections []string           `json:"projections"`
	Stats       eventmanager.Stats `json:"stats"`
}

// StateParams selects one projection; empty means all of them.
type StateParams struct {
	Name string `json:"name,omitempty"`
}

// StateResponse maps projection names to their encoded state.
type StateResponse struct {
	States map[string]json.RawMessage `json:"states"`
}

// EventsParams selects events processed after After, newest Limit of them.
type EventsParams struct {
	Limit int     `json:"limit,omitempty"`
	After float64 `json:"after,omitempty"`
}

// EventsResponse carries events as self-describing envelopes, oldest first.
type EventsResponse struct {
	Events []json.RawMessage `json:"events"`
}

// EmitParams carries the body of an external event.
type EmitParams struct {
	Content map[string]any `json:"content"`
}

// WaitParams blocks until Field of a projection's state equals Value.
// Field is a dot-separated path into the state's JSON form.
type WaitParams struct {
	Projection string `json:"projection"`
	Field      string `json:"field"`
	Value      any    `json:"value"`
	TimeoutMS  int64  `json:"timeout_ms"`
}

// WaitResponse carries the state that satisfied the wait.
type WaitResponse struct {
	State json.RawMessage `json:"state"`
}

// StopParams contains parameters for the stop method.
type StopParams struct {
	Force bool `json:"force,omitempty"`
}
