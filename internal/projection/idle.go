package projection

import (
	"time"

	"github.com/npratt/wingman/internal/events"
)

// DefaultIdleTimeout is how long without user interaction before the
// commander counts as idle.
const DefaultIdleTimeout = 5 * time.Minute

// IdleState tracks the last user interaction.
type IdleState struct {
	LastInteraction string `json:"last_interaction"`
	IsIdle          bool   `json:"is_idle"`
}

// Idle flips to idle when no user interaction happened for Timeout, judged
// by the timestamps of later game and status events or by the timer.
type Idle struct {
	Timeout time.Duration
}

func (Idle) DefaultState() IdleState {
	return IdleState{
		LastInteraction: "1970-01-01T00:00:00Z",
		IsIdle:          true,
	}
}

func (i Idle) Process(s IdleState, evt events.Event) (IdleState, []*events.ProjectedEvent, error) {
	switch e := evt.(type) {
	case *events.ConversationEvent:
		if e.Kind() == events.KindUser || e.Kind() == events.KindUserSpeaking {
			s.LastInteraction = e.Timestamp
			s.IsIdle = false
		}
	case *events.GameEvent, *events.StatusEvent:
		if s.IsIdle {
			return s, nil, nil
		}
		if now, ok := eventTime(evt); ok {
			return i.check(s, now)
		}
	}
	return s, nil, nil
}

func (i Idle) ProcessTimer(s IdleState, now time.Time) (IdleState, []*events.ProjectedEvent, error) {
	if s.IsIdle {
		return s, nil, nil
	}
	return i.check(s, now)
}

func (i Idle) check(s IdleState, now time.Time) (IdleState, []*events.ProjectedEvent, error) {
	last, err := events.ParseTimestamp(s.LastInteraction)
	if err != nil {
		return s, nil, nil
	}
	timeout := i.Timeout
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	if now.Sub(last) > timeout {
		s.IsIdle = true
		return s, emit("Idle"), nil
	}
	return s, nil, nil
}
