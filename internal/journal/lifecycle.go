package journal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// lifecycle runs a single background loop with Start/Stop semantics.
type lifecycle struct {
	running atomic.Bool
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
}

func (l *lifecycle) start(ctx context.Context, run func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running.Load() {
		return fmt.Errorf("watcher already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.running.Store(true)

	go func() {
		defer func() {
			l.running.Store(false)
			close(l.done)
		}()
		run()
	}()
	return nil
}

// Stop terminates the watcher gracefully.
func (l *lifecycle) Stop() error {
	l.mu.Lock()
	if l.done == nil {
		l.mu.Unlock()
		return nil
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Running returns whether the watcher is currently active.
func (l *lifecycle) Running() bool {
	return l.running.Load()
}

// stopped reports whether the loop's context has been cancelled.
func (l *lifecycle) stopped() bool {
	l.mu.Lock()
	ctx := l.ctx
	l.mu.Unlock()
	return ctx == nil || ctx.Err() != nil
}

func (l *lifecycle) context() context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ctx
}
