// Package shutdown runs long-lived components together and tears them down
// on SIGINT/SIGTERM or on the first failure.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Shutdowner defines the interface for components that can be gracefully shutdown.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ShutdownFunc adapts a function to Shutdowner.
type ShutdownFunc func(ctx context.Context) error

// Shutdown calls f.
func (f ShutdownFunc) Shutdown(ctx context.Context) error { return f(ctx) }

type hook struct {
	name string
	s    Shutdowner
}

// Group runs named components until one fails, a signal arrives, or Stop is
// called. Cleanup hooks then run in reverse registration order within the
// shutdown timeout.
type Group struct {
	logger  *slog.Logger
	timeout time.Duration

	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	stop   context.CancelFunc
	hooks  []hook
}

// NewGroup creates a group whose context is cancelled by SIGINT or SIGTERM.
// The returned context is the one components should run under.
func NewGroup(parent context.Context, logger *slog.Logger, timeout time.Duration) (*Group, context.Context) {
	return newGroup(parent, logger, timeout, syscall.SIGINT, syscall.SIGTERM)
}

func newGroup(parent context.Context, logger *slog.Logger, timeout time.Duration, sigs ...os.Signal) (*Group, context.Context) {
	if logger == nil {
		logger = slog.Default()
	}
	sigCtx, stop := signal.NotifyContext(parent, sigs...)
	runCtx, cancel := context.WithCancel(sigCtx)
	eg, egCtx := errgroup.WithContext(runCtx)

	g := &Group{
		logger:  logger.With("component", "shutdown"),
		timeout: timeout,
		eg:      eg,
		ctx:     egCtx,
		cancel:  cancel,
		stop:    stop,
	}

	go func() {
		<-sigCtx.Done()
		if parent.Err() == nil && runCtx.Err() == nil {
			g.logger.Info("shutdown signal received")
		}
	}()

	return g, egCtx
}

// Go starts a component. A non-nil error other than context cancellation
// stops every other component.
func (g *Group) Go(name string, run func(ctx context.Context) error) {
	g.eg.Go(func() error {
		err := run(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Error("component failed", "name", name, "error", err)
			return fmt.Errorf("%s: %w", name, err)
		}
		g.logger.Debug("component stopped", "name", name)
		return nil
	})
}

// OnShutdown registers a cleanup hook run after every component has stopped.
func (g *Group) OnShutdown(name string, s Shutdowner) {
	g.hooks = append(g.hooks, hook{name: name, s: s})
}

// Stop cancels the group's context.
func (g *Group) Stop() {
	g.cancel()
}

// Wait blocks until all components return, then runs the cleanup hooks.
// It returns the first component error joined with any hook errors.
func (g *Group) Wait() error {
	runErr := g.eg.Wait()
	g.cancel()
	g.stop()

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	errs := []error{runErr}
	for i := len(g.hooks) - 1; i >= 0; i-- {
		h := g.hooks[i]
		if err := h.s.Shutdown(ctx); err != nil {
			g.logger.Error("shutdown hook failed", "name", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s shutdown: %w", h.name, err))
		}
	}
	if ctx.Err() != nil {
		g.logger.Warn("shutdown timeout exceeded", "timeout", g.timeout)
	}

	g.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
