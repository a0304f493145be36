// Package daemon provides background execution with external control via Unix socket RPC.
package daemon

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/npratt/wingman/internal/config"
	"github.com/npratt/wingman/internal/eventmanager"
	"github.com/npratt/wingman/internal/events"
)

// Backend is the engine surface the daemon exposes. *eventmanager.Manager
// satisfies it.
type Backend interface {
	Stats() eventmanager.Stats
	Projections() []string
	GetProjectionState(name string) (any, error)
	GetCurrentState() ([]events.Event, events.States)
	AddExternalEvent(content map[string]any)
	WaitForCondition(ctx context.Context, name string, pred eventmanager.Predicate, timeout time.Duration) (any, error)
	ClearHistory(ctx context.Context) error
}

// Daemon serves the engine over a Unix socket.
type Daemon struct {
	config    *config.Config
	backend   Backend
	onStop    func()
	sockPath  string
	startTime time.Time
	logger    *slog.Logger

	running  bool
	listener net.Listener
	stopped  chan struct{}
	mu       sync.RWMutex
}

// New creates a new Daemon serving backend. onStop is called when a client
// requests a stop; it may be nil.
func New(cfg *config.Config, backend Backend, onStop func(), logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		config:   cfg,
		backend:  backend,
		onStop:   onStop,
		sockPath: cfg.Paths.Socket,
		logger:   logger.With("component", "daemon"),
	}
}

// Running returns whether the daemon is currently running.
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// setRunning updates the running state (thread-safe).
func (d *Daemon) setRunning(running bool) {
	d.mu.Lock()
	d.running = running
	d.mu.Unlock()
}

// Backend returns the served backend.
func (d *Daemon) Backend() Backend {
	return d.backend
}

// StartTime returns when the daemon was started.
func (d *Daemon) StartTime() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startTime
}

// SocketPath returns the Unix socket path.
func (d *Daemon) SocketPath() string {
	return d.sockPath
}
