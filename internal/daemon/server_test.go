package daemon

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/npratt/wingman/internal/config"
)

// waitForSocket waits for the socket to be ready to accept connections.
func waitForSocket(t *testing.T, socketPath string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("socket did not become ready within %v", timeout)
}

// shortSocketPath creates a short socket path to avoid Unix socket length limits.
// macOS has a 104 byte limit, Linux has 108 bytes.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp("", "sock")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	_ = f.Close()
	_ = os.Remove(path)
	t.Cleanup(func() { _ = os.Remove(path) })
	return path
}

// startDaemon runs d in the background and waits for its socket.
func startDaemon(t *testing.T, d *Daemon) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()
	t.Cleanup(cancel)
	waitForSocket(t, d.SocketPath(), 2*time.Second)
	return cancel, errCh
}

// roundTrip sends one raw request and decodes the response.
func roundTrip(t *testing.T, sockPath string, req Request) Response {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial socket: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		t.Fatalf("encode request: %v", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestDaemon_StartStop(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = filepath.Join(t.TempDir(), "test.sock")

	d := New(cfg, nil, nil, nil)
	cancel, errCh := startDaemon(t, d)

	if !d.Running() {
		t.Error("daemon should be running after Start")
	}
	if d.StartTime().IsZero() {
		t.Error("StartTime() should be set after Start")
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("daemon did not stop within timeout")
	}

	if d.Running() {
		t.Error("daemon should not be running after Stop")
	}
	if _, err := os.Stat(cfg.Paths.Socket); !os.IsNotExist(err) {
		t.Error("socket file should be removed after Stop")
	}
}

func TestDaemon_CreatesSocketDirectory(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = filepath.Join(t.TempDir(), "nested", "w.sock")

	d := New(cfg, nil, nil, nil)
	startDaemon(t, d)

	if !d.Running() {
		t.Error("daemon should be running")
	}
}

func TestDaemon_StartAlreadyRunning(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = filepath.Join(t.TempDir(), "test.sock")

	d := New(cfg, nil, nil, nil)
	startDaemon(t, d)

	if err := d.Start(context.Background()); err == nil {
		t.Error("expected error when starting already running daemon")
	}
}

func TestDaemon_SocketPermissions(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = filepath.Join(t.TempDir(), "test.sock")

	d := New(cfg, nil, nil, nil)
	startDaemon(t, d)

	info, err := os.Stat(cfg.Paths.Socket)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != socketPermissions {
		t.Errorf("expected socket permissions %o, got %o", socketPermissions, perm)
	}
}

func TestDaemon_HandleConnection_UnknownMethod(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = shortSocketPath(t)

	d := New(cfg, &fakeBackend{}, nil, nil)
	startDaemon(t, d)

	resp := roundTrip(t, cfg.Paths.Socket, Request{Method: "unknown_method", ID: 1})

	if resp.Error == "" {
		t.Error("expected error for unknown method")
	}
	if resp.ID != 1 {
		t.Errorf("expected ID 1, got %d", resp.ID)
	}
}

func TestDaemon_HandleConnection_InvalidJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = shortSocketPath(t)

	d := New(cfg, nil, nil, nil)
	startDaemon(t, d)

	conn, err := net.Dial("unix", cfg.Paths.Socket)
	if err != nil {
		t.Fatalf("dial socket: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected error for invalid JSON")
	}
}

func TestDaemon_HandleStatus_NoBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = shortSocketPath(t)

	d := New(cfg, nil, nil, nil)
	startDaemon(t, d)

	resp := roundTrip(t, cfg.Paths.Socket, Request{Method: MethodStatus, ID: 1})
	if resp.Error == "" {
		t.Error("expected error when no backend available")
	}
}

func TestDaemon_StopRequestEndsStart(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = shortSocketPath(t)

	var stopCalls atomic.Int32
	d := New(cfg, nil, func() { stopCalls.Add(1) }, nil)
	_, errCh := startDaemon(t, d)

	resp := roundTrip(t, cfg.Paths.Socket, Request{Method: MethodStop, ID: 7})
	if resp.Error != "" {
		t.Fatalf("stop returned error: %s", resp.Error)
	}
	if resp.Result != "stopping" {
		t.Errorf("expected result 'stopping', got %v", resp.Result)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after a stop request")
	}

	if n := stopCalls.Load(); n != 1 {
		t.Errorf("expected onStop to be called once, got %d", n)
	}
}

func TestDaemon_StopIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = filepath.Join(t.TempDir(), "test.sock")

	d := New(cfg, nil, nil, nil)

	if err := d.Stop(); err != nil {
		t.Errorf("Stop() on non-running daemon returned error: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop() returned error: %v", err)
	}
}

func TestDaemon_CleanupStaleSocket(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Socket = filepath.Join(t.TempDir(), "test.sock")

	if err := os.WriteFile(cfg.Paths.Socket, []byte("stale"), 0644); err != nil {
		t.Fatalf("create stale socket: %v", err)
	}

	d := New(cfg, nil, nil, nil)
	startDaemon(t, d)

	info, err := os.Stat(cfg.Paths.Socket)
	if err != nil {
		t.Fatalf("stat socket: %v", err)
	}
	if info.Mode().Type() != os.ModeSocket {
		t.Error("expected socket file, got regular file")
	}
}
