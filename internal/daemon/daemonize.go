package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/npratt/wingman/internal/config"
)

const (
	// daemonEnvVar marks the re-executed background engine.
	daemonEnvVar = "WINGMAN_DAEMONIZED"

	// startupTimeout bounds how long the parent waits for the engine's socket.
	startupTimeout = 5 * time.Second

	socketCheckInterval = 50 * time.Millisecond

	stderrLogFile = "daemon.log"

	// startupLogLines is how much of the engine's log is quoted when it
	// exits during startup.
	startupLogLines = 5
)

// ErrStartupFailed is returned when the background engine exits before its
// socket comes up.
var ErrStartupFailed = errors.New("engine exited during startup")

// Daemonize re-executes the current command as a background engine. In the
// parent it returns shouldExit=true once the engine serves its socket; in
// the re-executed child it returns shouldExit=false and the child carries
// on starting the engine.
//
// The parent refuses to spawn when another engine holds the database lock,
// and reports the tail of daemon.log when the child dies during startup,
// e.g. because the database cannot be opened.
func Daemonize(cfg *config.Config, out io.Writer) (shouldExit bool, pid int, err error) {
	if IsDaemonized() {
		return false, os.Getpid(), nil
	}

	if path := LockPath(cfg.Paths); lockHeld(path) {
		owner, _ := ReadOwner(path)
		return false, 0, &LockedError{Path: path, Owner: owner}
	}

	executable, err := os.Executable()
	if err != nil {
		return false, 0, fmt.Errorf("get executable path: %w", err)
	}

	logPath := StderrLogPath(cfg)
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return false, 0, fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return false, 0, fmt.Errorf("open daemon log: %w", err)
	}
	defer func() { _ = logFile.Close() }()
	logStart, _ := logFile.Seek(0, io.SeekEnd)

	cmd := exec.Command(executable, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnvVar+"=1")
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return false, 0, fmt.Errorf("start engine: %w", err)
	}
	childPID := cmd.Process.Pid

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	switch err := waitForEngine(cfg.Paths.Socket, exited, startupTimeout); {
	case errors.Is(err, ErrStartupFailed):
		return false, childPID, fmt.Errorf("%w; %s:\n%s", err, logPath, logTail(logPath, logStart, startupLogLines))
	case err != nil:
		_, _ = fmt.Fprintf(out, "Started wingman engine (pid %d); socket %s not yet available\n", childPID, cfg.Paths.Socket)
	default:
		_, _ = fmt.Fprintf(out, "Started wingman engine (pid %d) on %s\n", childPID, cfg.Paths.Socket)
	}
	return true, childPID, nil
}

// StderrLogPath is where a background engine's stderr is appended, next to
// its socket.
func StderrLogPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Paths.Socket), stderrLogFile)
}

// IsDaemonized reports whether this process is a re-executed background
// engine.
func IsDaemonized() bool {
	return os.Getenv(daemonEnvVar) == "1"
}

// waitForEngine waits until socketPath accepts connections. It fails with
// ErrStartupFailed as soon as exited delivers, and with a plain error after
// timeout.
func waitForEngine(socketPath string, exited <-chan error, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(socketCheckInterval)
	defer tick.Stop()

	for {
		if conn, err := net.DialTimeout("unix", socketPath, socketCheckInterval); err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case err := <-exited:
			if err == nil {
				return ErrStartupFailed
			}
			return fmt.Errorf("%w: %v", ErrStartupFailed, err)
		case <-deadline.C:
			return fmt.Errorf("socket %s not available after %v", socketPath, timeout)
		case <-tick.C:
		}
	}
}

// logTail returns the last n lines written to path after offset.
func logTail(path string, offset int64, n int) string {
	data, err := os.ReadFile(path)
	if err != nil || offset > int64(len(data)) {
		return ""
	}
	lines := strings.Split(string(bytes.TrimRight(data[offset:], "\n")), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
