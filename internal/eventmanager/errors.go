package eventmanager

import (
	"errors"
	"fmt"
	"time"

	"github.com/npratt/wingman/internal/events"
)

// Sentinel errors.
var (
	ErrConditionTimeout    = errors.New("condition not met before timeout")
	ErrProjectionNotFound  = errors.New("projection not found")
	ErrDuplicateProjection = errors.New("projection already registered")
)

// WaitError is returned by WaitForCondition when the timeout elapses.
type WaitError struct {
	Projection string
	Timeout    time.Duration
}

func (e *WaitError) Error() string {
	return fmt.Sprintf("wait for %s: condition not met within %s", e.Projection, e.Timeout)
}

func (e *WaitError) Unwrap() error {
	return ErrConditionTimeout
}

// ProjectionError reports a reducer failure. It is logged and contained; the
// projection keeps its previous state.
type ProjectionError struct {
	Projection string
	EventKind  events.Kind
	Event      string
	Err        error
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("projection %s failed on %s event %q: %v", e.Projection, e.EventKind, e.Event, e.Err)
}

func (e *ProjectionError) Unwrap() error {
	return e.Err
}

// RegistrationError reports a projection that could not be registered.
type RegistrationError struct {
	Projection string
	Err        error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register projection %s: %v", e.Projection, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
