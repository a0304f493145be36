package journal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// dirWatch describes one fsnotify-driven watch loop.
type dirWatch struct {
	dir string
	// match selects the files whose writes trigger onChange.
	match func(name string) bool
	// ready runs once the directory is being watched.
	ready func()
	// onChange runs after writes settle and on every poll tick.
	onChange func()
	warn     func(msg string)
}

// run blocks until ctx is cancelled or the watcher fails.
func (d dirWatch) run(ctx context.Context) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.warn(fmt.Sprintf("failed to create file watcher: %v", err))
		return
	}
	defer func() { _ = fsWatcher.Close() }()

	if err := fsWatcher.Add(d.dir); err != nil {
		d.warn(fmt.Sprintf("failed to watch directory %s: %v", d.dir, err))
		return
	}

	if d.ready != nil {
		d.ready()
	}

	var debounceTimer *time.Timer
	var debounceMu sync.Mutex

	trigger := func() {
		debounceMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(debounceInterval, d.onChange)
		debounceMu.Unlock()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			debounceMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceMu.Unlock()
			return

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if !d.match(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				trigger()
			}

		case <-ticker.C:
			d.onChange()

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			d.warn(fmt.Sprintf("file watcher error: %v", err))
		}
	}
}

// rateLimiter drops repeated warnings inside warningInterval.
type rateLimiter struct {
	mu   sync.Mutex
	last time.Time
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.last) < warningInterval {
		return false
	}
	r.last = now
	return true
}
