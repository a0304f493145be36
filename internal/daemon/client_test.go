package daemon

import (
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
)

// mockServer starts a mock daemon server that returns canned responses.
func mockServer(t *testing.T, sockPath string, handler func(req Request) Response) func() {
	t.Helper()

	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-done:
					return
				default:
					continue
				}
			}

			go func(c net.Conn) {
				defer func() { _ = c.Close() }()

				var req Request
				if err := json.NewDecoder(c).Decode(&req); err != nil {
					return
				}

				resp := handler(req)
				resp.ID = req.ID
				_ = json.NewEncoder(c).Encode(resp)
			}(conn)
		}
	}()

	return func() {
		close(done)
		_ = listener.Close()
		_ = os.Remove(sockPath)
	}
}

func TestClient_Status_Success(t *testing.T) {
	sockPath := shortSocketPath(t)

	cleanup := mockServer(t, sockPath, func(req Request) Response {
		if req.Method != "status" {
			return Response{Error: "unexpected method"}
		}
		return Response{
			Result: StatusResponse{
				Status:      "running",
				Uptime:      "1h30m",
				StartTime:   "2024-01-15T10:00:00Z",
				Projections: []string{"EventCounter", "DockingState"},
				Stats: eventmanager.Stats{
					Queued:        2,
					History:       120,
					Projections:   2,
					LastProcessed: 1705312800.5,
				},
			},
		}
	})
	defer cleanup()

	client := NewClient(sockPath)
	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}

	if status.Status != "running" {
		t.Errorf("expected status 'running', got %q", status.Status)
	}
	if len(status.Projections) != 2 || status.Projections[1] != "DockingState" {
		t.Errorf("unexpected projections %v", status.Projections)
	}
	if status.Stats.History != 120 {
		t.Errorf("expected history 120, got %d", status.Stats.History)
	}
	if status.Stats.LastProcessed != 1705312800.5 {
		t.Errorf("expected last_processed 1705312800.5, got %v", status.Stats.LastProcessed)
	}
}

func TestClient_State_Success(t *testing.T) {
	sockPath := shortSocketPath(t)

	var gotName any
	cleanup := mockServer(t, sockPath, func(req Request) Response {
		if req.Method != "state" {
			return Response{Error: "unexpected method"}
		}
		if params, ok := req.Params.(map[string]any); ok {
			gotName = params["name"]
		}
		return Response{Result: StateResponse{States: map[string]json.RawMessage{
			"DockingState": json.RawMessage(`{"docked":true}`),
		}}}
	})
	defer cleanup()

	client := NewClient(sockPath)
	states, err := client.State("DockingState")
	if err != nil {
		t.Fatalf("State() error: %v", err)
	}
	if gotName != "DockingState" {
		t.Errorf("server received name %v", gotName)
	}
	if string(states["DockingState"]) != `{"docked":true}` {
		t.Errorf("unexpected state %s", states["DockingState"])
	}
}

func TestClient_State_NotFound(t *testing.T) {
	sockPath := shortSocketPath(t)

	cleanup := mockServer(t, sockPath, func(req Request) Response {
		return Response{Error: "projection not found: Nope", Code: CodeNotFound}
	})
	defer cleanup()

	client := NewClient(sockPath)
	_, err := client.State("Nope")
	if !errors.Is(err, eventmanager.ErrProjectionNotFound) {
		t.Errorf("expected ErrProjectionNotFound, got %v", err)
	}
}

func TestClient_Events_Success(t *testing.T) {
	sockPath := shortSocketPath(t)

	evt := events.NewGameEvent(map[string]any{"event": "Docked", "StationName": "Galileo"}, false)
	evt.ProcessedAt = 42.5
	env, err := events.MarshalEnvelope(evt)
	if err != nil {
		t.Fatalf("MarshalEnvelope: %v", err)
	}

	var gotParams map[string]any
	cleanup := mockServer(t, sockPath, func(req Request) Response {
		gotParams, _ = req.Params.(map[string]any)
		return Response{Result: EventsResponse{Events: []json.RawMessage{env}}}
	})
	defer cleanup()

	client := NewClient(sockPath)
	got, err := client.Events(5, 10)
	if err != nil {
		t.Fatalf("Events() error: %v", err)
	}
	if gotParams["limit"] != 5.0 || gotParams["after"] != 10.0 {
		t.Errorf("server received params %v", gotParams)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if events.Name(got[0]) != "Docked" || got[0].Base().ProcessedAt != 42.5 {
		t.Errorf("unexpected event %+v", got[0])
	}
}

func TestClient_Emit_Success(t *testing.T) {
	sockPath := shortSocketPath(t)

	var content map[string]any
	cleanup := mockServer(t, sockPath, func(req Request) Response {
		if req.Method != "emit" {
			return Response{Error: "unexpected method"}
		}
		params, _ := req.Params.(map[string]any)
		content, _ = params["content"].(map[string]any)
		return Response{Result: "queued"}
	})
	defer cleanup()

	client := NewClient(sockPath)
	if err := client.Emit(map[string]any{"event": "TwitchRaid", "viewers": 12}); err != nil {
		t.Fatalf("Emit() error: %v", err)
	}
	if content["event"] != "TwitchRaid" || content["viewers"] != 12.0 {
		t.Errorf("server received content %v", content)
	}
}

func TestClient_Wait_Success(t *testing.T) {
	sockPath := shortSocketPath(t)

	var gotParams map[string]any
	cleanup := mockServer(t, sockPath, func(req Request) Response {
		gotParams, _ = req.Params.(map[string]any)
		return Response{Result: WaitResponse{State: json.RawMessage(`{"docked":true}`)}}
	})
	defer cleanup()

	client := NewClient(sockPath)
	st, err := client.Wait("DockingState", "docked", true, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if string(st) != `{"docked":true}` {
		t.Errorf("unexpected state %s", st)
	}
	if gotParams["projection"] != "DockingState" || gotParams["field"] != "docked" ||
		gotParams["value"] != true || gotParams["timeout_ms"] != 250.0 {
		t.Errorf("server received params %v", gotParams)
	}
	if client.timeout != DefaultClientTimeout {
		t.Errorf("timeout not restored: %v", client.timeout)
	}
}

func TestClient_Wait_Timeout(t *testing.T) {
	sockPath := shortSocketPath(t)

	cleanup := mockServer(t, sockPath, func(req Request) Response {
		return Response{Error: "wait for DockingState: condition not met within 50ms", Code: CodeTimeout}
	})
	defer cleanup()

	client := NewClient(sockPath)
	_, err := client.Wait("DockingState", "docked", true, 50*time.Millisecond)
	if !errors.Is(err, eventmanager.ErrConditionTimeout) {
		t.Errorf("expected ErrConditionTimeout, got %v", err)
	}
}

func TestClient_ClearHistory_Success(t *testing.T) {
	sockPath := shortSocketPath(t)

	var method string
	cleanup := mockServer(t, sockPath, func(req Request) Response {
		method = req.Method
		return Response{Result: "cleared"}
	})
	defer cleanup()

	client := NewClient(sockPath)
	if err := client.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory() error: %v", err)
	}
	if method != MethodClearHistory {
		t.Errorf("expected method %q, got %q", MethodClearHistory, method)
	}
}

func TestClient_Stop_Success(t *testing.T) {
	sockPath := shortSocketPath(t)

	cleanup := mockServer(t, sockPath, func(req Request) Response {
		if req.Method != "stop" {
			return Response{Error: "unexpected method"}
		}
		return Response{Result: "stopping"}
	})
	defer cleanup()

	client := NewClient(sockPath)
	err := client.Stop(false)
	if err != nil {
		t.Errorf("Stop() error: %v", err)
	}
}

func TestClient_Stop_Force(t *testing.T) {
	sockPath := shortSocketPath(t)

	var receivedForce bool
	cleanup := mockServer(t, sockPath, func(req Request) Response {
		if req.Method != "stop" {
			return Response{Error: "unexpected method"}
		}
		// Check if force param was received
		if params, ok := req.Params.(map[string]any); ok {
			if f, ok := params["force"].(bool); ok {
				receivedForce = f
			}
		}
		return Response{Result: "stopping"}
	})
	defer cleanup()

	client := NewClient(sockPath)
	err := client.Stop(true)
	if err != nil {
		t.Errorf("Stop(true) error: %v", err)
	}
	if !receivedForce {
		t.Error("expected force=true to be received by server")
	}
}

func TestClient_IsRunning_True(t *testing.T) {
	sockPath := shortSocketPath(t)

	cleanup := mockServer(t, sockPath, func(req Request) Response {
		return Response{Result: "ok"}
	})
	defer cleanup()

	client := NewClient(sockPath)
	if !client.IsRunning() {
		t.Error("expected IsRunning() to return true")
	}
}

func TestClient_IsRunning_False(t *testing.T) {
	client := NewClient("/tmp/nonexistent.sock")
	if client.IsRunning() {
		t.Error("expected IsRunning() to return false for nonexistent socket")
	}
}

func TestClient_SocketNotFound(t *testing.T) {
	client := NewClient("/tmp/nonexistent.sock")
	_, err := client.Status()
	if err == nil {
		t.Fatal("expected error for nonexistent socket")
	}

	expected := "daemon not running (socket not found)"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestClient_DaemonError(t *testing.T) {
	sockPath := shortSocketPath(t)

	cleanup := mockServer(t, sockPath, func(req Request) Response {
		return Response{Error: "no backend available"}
	})
	defer cleanup()

	client := NewClient(sockPath)
	_, err := client.Status()
	if err == nil {
		t.Fatal("expected error for daemon error response")
	}

	expected := "daemon error: no controller available"
	if err.Error() != expected {
		t.Errorf("expected error %q, got %q", expected, err.Error())
	}
}

func TestClient_SetTimeout(t *testing.T) {
	client := NewClient("/tmp/test.sock")

	// Check default timeout
	if client.timeout != DefaultClientTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultClientTimeout, client.timeout)
	}

	// Set new timeout
	client.SetTimeout(10 * time.Second)
	if client.timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", client.timeout)
	}
}

func TestClient_ConnectionRefused(t *testing.T) {
	// Create a socket file but don't listen on it
	tmp := t.TempDir()
	sockPath := filepath.Join(tmp, "test.sock")

	// Create the socket file (not a real socket, just a file)
	listener, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("create socket: %v", err)
	}
	// Close immediately to simulate connection refused
	_ = listener.Close()

	client := NewClient(sockPath)
	_, err = client.Status()
	if err == nil {
		t.Fatal("expected error for closed socket")
	}
	// Should get connection refused error
	if err.Error() != "daemon not running (connection refused)" &&
		err.Error() != "daemon not running (socket not found)" {
		// On some systems, closed socket shows as not found
		t.Logf("got error: %v (acceptable)", err)
	}
}
