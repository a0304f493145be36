package eventmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Predicate reports whether a projection state satisfies a condition.
// Predicates receive a snapshot and must not block. They run without the
// manager's state lock held, so they may read other projections, but they
// must not wait on conditions or process events.
type Predicate func(state any) bool

// waiter is a single pending WaitForCondition call. Its channel receives at
// most one value.
type waiter struct {
	pred Predicate
	ch   chan any
}

// conditionRegistry tracks waiters per projection name.
type conditionRegistry struct {
	mu      sync.Mutex
	waiters map[string][]*waiter
	logger  *slog.Logger
}

func newConditionRegistry(logger *slog.Logger) *conditionRegistry {
	return &conditionRegistry{
		waiters: make(map[string][]*waiter),
		logger:  logger,
	}
}

func (r *conditionRegistry) add(name string, w *waiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiters[name] = append(r.waiters[name], w)
}

// remove drops w and reports whether it was still pending. A false result
// means a value has been (or is being) delivered on w.ch.
func (r *conditionRegistry) remove(name string, w *waiter) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.waiters[name]
	for i, cand := range list {
		if cand == w {
			r.waiters[name] = append(list[:i:i], list[i+1:]...)
			if len(r.waiters[name]) == 0 {
				delete(r.waiters, name)
			}
			return true
		}
	}
	return false
}

// pending returns the number of waiters registered for name.
func (r *conditionRegistry) pending(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters[name])
}

// total returns the number of pending waiters across all projections.
func (r *conditionRegistry) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.waiters {
		n += len(list)
	}
	return n
}

// notify evaluates every waiter on name against state and wakes the ones
// whose predicate holds. clone produces the snapshot handed to each woken
// waiter.
func (r *conditionRegistry) notify(name string, state any, clone func(any) any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.waiters[name]
	if len(list) == 0 {
		return
	}
	snapshot := clone(state)
	kept := list[:0]
	for _, w := range list {
		if !r.eval(name, w.pred, snapshot) {
			kept = append(kept, w)
			continue
		}
		w.ch <- clone(state)
	}
	clear(list[len(kept):])
	if len(kept) == 0 {
		delete(r.waiters, name)
		return
	}
	r.waiters[name] = kept
}

// eval runs a predicate, treating a panic as false.
func (r *conditionRegistry) eval(name string, pred Predicate, state any) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("condition predicate panicked", "projection", name, "error", panicError(rec))
			ok = false
		}
	}()
	return pred(state)
}

// WaitForCondition blocks until the named projection's state satisfies pred,
// then returns a snapshot of that state. A timeout <= 0 waits until ctx is
// done. On timeout the error is a *WaitError wrapping ErrConditionTimeout.
// Waiting on a name that is not registered is allowed; the wait resolves if
// the projection is registered later.
func (m *Manager) WaitForCondition(ctx context.Context, name string, pred Predicate, timeout time.Duration) (any, error) {
	// Register before evaluating so no state change between the snapshot
	// and the wait is missed.
	w := &waiter{pred: pred, ch: make(chan any, 1)}
	m.stateMu.RLock()
	e, registered := m.byName[name]
	var snapshot any
	if registered {
		snapshot = e.proj.Clone(e.state)
	}
	m.conditions.add(name, w)
	m.stateMu.RUnlock()

	if registered && m.conditions.eval(name, pred, snapshot) {
		if !m.conditions.remove(name, w) {
			return <-w.ch, nil
		}
		return snapshot, nil
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case v := <-w.ch:
		return v, nil
	case <-expired:
		if !m.conditions.remove(name, w) {
			return <-w.ch, nil
		}
		return nil, &WaitError{Projection: name, Timeout: timeout}
	case <-ctx.Done():
		if !m.conditions.remove(name, w) {
			return <-w.ch, nil
		}
		return nil, fmt.Errorf("wait for %s: %w", name, ctx.Err())
	}
}

// WaitFor is the typed form of WaitForCondition.
func WaitFor[S any](ctx context.Context, m *Manager, name string, pred func(S) bool, timeout time.Duration) (S, error) {
	v, err := m.WaitForCondition(ctx, name, func(state any) bool {
		s, ok := state.(S)
		return ok && pred(s)
	}, timeout)
	if err != nil {
		var zero S
		return zero, err
	}
	return v.(S), nil
}
