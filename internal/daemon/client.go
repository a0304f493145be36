package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
)

const (
	// DefaultClientTimeout is the default timeout for client operations.
	DefaultClientTimeout = 5 * time.Second
)

// Client connects to the daemon via Unix socket.
type Client struct {
	sockPath string
	timeout  time.Duration
}

// NewClient creates a new daemon client.
func NewClient(sockPath string) *Client {
	return &Client{
		sockPath: sockPath,
		timeout:  DefaultClientTimeout,
	}
}

// SetTimeout sets the timeout for client operations.
func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// call sends a JSON-RPC request to the daemon and returns the response.
func (c *Client) call(method string, params any) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.sockPath, c.timeout)
	if err != nil {
		return nil, c.wrapConnError(err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}

	req := Request{Method: method, Params: params}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.Error != "" {
		switch resp.Code {
		case CodeTimeout:
			return nil, fmt.Errorf("daemon error: %s: %w", resp.Error, eventmanager.ErrConditionTimeout)
		case CodeNotFound:
			return nil, fmt.Errorf("daemon error: %s: %w", resp.Error, eventmanager.ErrProjectionNotFound)
		}
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

// wrapConnError converts connection errors to user-friendly messages.
func (c *Client) wrapConnError(err error) error {
	// Check for syscall errors that indicate specific conditions
	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.ENOENT:
			return errors.New("daemon not running (socket not found)")
		case syscall.ECONNREFUSED:
			return errors.New("daemon not running (connection refused)")
		}
	}

	// Fallback check for os.IsNotExist
	if os.IsNotExist(err) {
		return errors.New("daemon not running (socket not found)")
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return errors.New("daemon request timed out")
	}

	return fmt.Errorf("connect to daemon: %w", err)
}

// decodeResult re-marshals a loosely-typed result into out.
func decodeResult(resp *Response, out any) error {
	data, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	return nil
}

// Status returns the current daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.call(MethodStatus, nil)
	if err != nil {
		return nil, err
	}

	var status StatusResponse
	if err := decodeResult(resp, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// State returns the encoded state of one projection, or of all of them when
// name is empty.
func (c *Client) State(name string) (map[string]json.RawMessage, error) {
	resp, err := c.call(MethodState, StateParams{Name: name})
	if err != nil {
		return nil, err
	}

	var state StateResponse
	if err := decodeResult(resp, &state); err != nil {
		return nil, err
	}
	return state.States, nil
}

// Events returns up to limit events processed after the given time, oldest
// first.
func (c *Client) Events(limit int, after float64) ([]events.Event, error) {
	resp, err := c.call(MethodEvents, EventsParams{Limit: limit, After: after})
	if err != nil {
		return nil, err
	}

	var result EventsResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}

	out := make([]events.Event, 0, len(result.Events))
	for _, raw := range result.Events {
		evt, err := events.UnmarshalEnvelope(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, nil
}

// Emit queues an external event. content must carry an "event" name.
func (c *Client) Emit(content map[string]any) error {
	_, err := c.call(MethodEmit, EmitParams{Content: content})
	return err
}

// Wait blocks until field of the projection's state equals value and returns
// the matching state. A timeout wraps eventmanager.ErrConditionTimeout.
func (c *Client) Wait(projection, field string, value any, timeout time.Duration) (json.RawMessage, error) {
	params := WaitParams{
		Projection: projection,
		Field:      field,
		Value:      value,
		TimeoutMS:  timeout.Milliseconds(),
	}

	// The connection must outlive the wait itself.
	prev := c.timeout
	c.timeout = timeout + prev
	defer func() { c.timeout = prev }()

	resp, err := c.call(MethodWait, params)
	if err != nil {
		return nil, err
	}

	var result WaitResponse
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return result.State, nil
}

// ClearHistory asks the daemon to wipe the event log and reset projections.
func (c *Client) ClearHistory() error {
	_, err := c.call(MethodClearHistory, nil)
	return err
}

// Stop requests the daemon to stop. If force is true, stops immediately.
func (c *Client) Stop(force bool) error {
	params := StopParams{Force: force}
	_, err := c.call(MethodStop, params)
	return err
}

// IsRunning checks if the daemon is running by attempting to connect.
func (c *Client) IsRunning() bool {
	conn, err := net.DialTimeout("unix", c.sockPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
