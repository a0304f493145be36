package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
)

const (
	// DefaultEventsLimit bounds an events request without a limit.
	DefaultEventsLimit = 50
	// DefaultWaitTimeout applies to wait requests without a timeout.
	DefaultWaitTimeout = 10 * time.Second
)

// handleRequest dispatches the request to the appropriate handler.
func (d *Daemon) handleRequest(ctx context.Context, req *Request) Response {
	if d.backend == nil && req.Method != MethodStop {
		return Response{Error: "no backend available"}
	}

	switch req.Method {
	case MethodStatus:
		return d.handleStatus()
	case MethodState:
		return d.handleState(req)
	case MethodEvents:
		return d.handleEvents(req)
	case MethodEmit:
		return d.handleEmit(req)
	case MethodWait:
		return d.handleWait(ctx, req)
	case MethodClearHistory:
		return d.handleClearHistory(ctx)
	case MethodStop:
		return d.handleStop(req)
	default:
		return Response{Error: fmt.Sprintf("unknown method: %s", req.Method)}
	}
}

// decodeParams decodes the loosely-typed params of req into out.
func decodeParams(req *Request, out any) error {
	if req.Params == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(req.Params)
}

func invalid(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...), Code: CodeInvalid}
}

// handleStatus returns the current daemon status.
func (d *Daemon) handleStatus() Response {
	d.mu.RLock()
	startTime := d.startTime
	d.mu.RUnlock()

	return Response{
		Result: StatusResponse{
			Status:      "running",
			Uptime:      time.Since(startTime).Truncate(time.Second).String(),
			StartTime:   startTime.Format(time.RFC3339),
			Projections: d.backend.Projections(),
			Stats:       d.backend.Stats(),
		},
	}
}

// handleState returns one or all projection states.
func (d *Daemon) handleState(req *Request) Response {
	var params StateParams
	if err := decodeParams(req, &params); err != nil {
		return invalid("invalid params: %v", err)
	}

	states := make(map[string]json.RawMessage)
	if params.Name != "" {
		st, err := d.backend.GetProjectionState(params.Name)
		if err != nil {
			if errors.Is(err, eventmanager.ErrProjectionNotFound) {
				return Response{Error: err.Error(), Code: CodeNotFound}
			}
			return Response{Error: err.Error()}
		}
		data, err := json.Marshal(st)
		if err != nil {
			return Response{Error: fmt.Sprintf("encode %s: %v", params.Name, err)}
		}
		states[params.Name] = data
		return Response{Result: StateResponse{States: states}}
	}

	_, all := d.backend.GetCurrentState()
	for name, st := range all {
		data, err := json.Marshal(st)
		if err != nil {
			d.logger.Warn("cannot encode projection state", "projection", name, "error", err)
			continue
		}
		states[name] = data
	}
	return Response{Result: StateResponse{States: states}}
}

// handleEvents returns the newest processed events after params.After.
func (d *Daemon) handleEvents(req *Request) Response {
	var params EventsParams
	if err := decodeParams(req, &params); err != nil {
		return invalid("invalid params: %v", err)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultEventsLimit
	}

	history, _ := d.backend.GetCurrentState()
	selected := make([]events.Event, 0, len(history))
	for _, evt := range history {
		if evt.Base().ProcessedAt > params.After {
			selected = append(selected, evt)
		}
	}
	if len(selected) > limit {
		selected = selected[len(selected)-limit:]
	}

	out := make([]json.RawMessage, 0, len(selected))
	for _, evt := range selected {
		data, err := events.MarshalEnvelope(evt)
		if err != nil {
			d.logger.Warn("cannot encode event", "kind", evt.Kind(), "error", err)
			continue
		}
		out = append(out, data)
	}
	return Response{Result: EventsResponse{Events: out}}
}

// handleEmit queues an external event.
func (d *Daemon) handleEmit(req *Request) Response {
	var params EmitParams
	if err := decodeParams(req, &params); err != nil {
		return invalid("invalid params: %v", err)
	}
	if name, _ := params.Content["event"].(string); name == "" {
		return invalid("content must carry an \"event\" name")
	}

	d.backend.AddExternalEvent(params.Content)
	return Response{Result: "queued"}
}

// handleWait blocks until the requested field matches or the wait times out.
func (d *Daemon) handleWait(ctx context.Context, req *Request) Response {
	var params WaitParams
	if err := decodeParams(req, &params); err != nil {
		return invalid("invalid params: %v", err)
	}
	if params.Projection == "" || params.Field == "" {
		return invalid("projection and field are required")
	}
	timeout := time.Duration(params.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	st, err := d.backend.WaitForCondition(ctx, params.Projection, FieldEquals(params.Field, params.Value), timeout)
	if err != nil {
		if errors.Is(err, eventmanager.ErrConditionTimeout) {
			return Response{Error: err.Error(), Code: CodeTimeout}
		}
		return Response{Error: err.Error()}
	}

	data, err := json.Marshal(st)
	if err != nil {
		return Response{Error: fmt.Sprintf("encode %s: %v", params.Projection, err)}
	}
	return Response{Result: WaitResponse{State: data}}
}

// handleClearHistory wipes the event log and resets every projection.
func (d *Daemon) handleClearHistory(ctx context.Context) Response {
	if err := d.backend.ClearHistory(ctx); err != nil {
		return Response{Error: err.Error()}
	}
	return Response{Result: "cleared"}
}

// handleStop asks the owner to shut down and schedules daemon shutdown.
func (d *Daemon) handleStop(req *Request) Response {
	var params StopParams
	if err := decodeParams(req, &params); err != nil {
		return invalid("invalid params: %v", err)
	}

	if d.onStop != nil {
		d.onStop()
	}

	go func() {
		if params.Force {
			time.Sleep(50 * time.Millisecond)
		} else {
			// Allow in-flight responses to be written.
			time.Sleep(100 * time.Millisecond)
		}
		_ = d.Stop()
	}()

	return Response{Result: "stopping"}
}

// FieldEquals returns a predicate matching states whose JSON form holds want
// at the dot-separated path. Numeric path segments index into arrays.
func FieldEquals(path string, want any) eventmanager.Predicate {
	keys := strings.Split(path, ".")
	want = normalize(want)
	return func(state any) bool {
		got, ok := lookup(normalize(state), keys)
		if !ok {
			return false
		}
		if reflect.DeepEqual(got, want) {
			return true
		}
		s, isString := want.(string)
		return isString && fmt.Sprint(got) == s
	}
}

// normalize converts v to its generic JSON form.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func lookup(doc any, keys []string) (any, bool) {
	cur := doc
	for _, key := range keys {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
