package projection

import (
	"time"

	"github.com/npratt/wingman/internal/events"
)

// DefaultJumpCooldown is the frame shift drive cooldown after a hyperspace
// jump.
const DefaultJumpCooldown = 10 * time.Second

// JumpCooldownState tracks frame shift drive readiness.
type JumpCooldownState struct {
	ChargingSince string `json:"charging_since,omitempty"`
	LastJump      string `json:"last_jump,omitempty"`
	CooldownUntil string `json:"cooldown_until,omitempty"`
	Ready         bool   `json:"ready"`
}

// JumpCooldown schedules the end of the post-jump cooldown and announces it
// with JumpCooldownComplete once a later event or the timer passes it.
type JumpCooldown struct {
	Cooldown time.Duration
}

func (JumpCooldown) DefaultState() JumpCooldownState {
	return JumpCooldownState{Ready: true}
}

func (j JumpCooldown) Process(s JumpCooldownState, evt events.Event) (JumpCooldownState, []*events.ProjectedEvent, error) {
	name, content, ok := gameEvent(evt)
	if ok {
		switch name {
		case "StartJump":
			if str(content, "JumpType") != "Supercruise" {
				s.ChargingSince = evt.Base().Timestamp
			}
			return s, nil, nil
		case "SupercruiseEntry":
			s.ChargingSince = ""
			return s, nil, nil
		case "FSDJump":
			at, ok := eventTime(evt)
			if !ok {
				return s, nil, nil
			}
			cooldown := j.Cooldown
			if cooldown <= 0 {
				cooldown = DefaultJumpCooldown
			}
			s.ChargingSince = ""
			s.LastJump = evt.Base().Timestamp
			s.CooldownUntil = events.FormatTimestamp(at.Add(cooldown))
			s.Ready = false
			return s, nil, nil
		}
	}

	if _, isGame := evt.(*events.GameEvent); !isGame {
		if _, isStatus := evt.(*events.StatusEvent); !isStatus {
			return s, nil, nil
		}
	}
	if now, ok := eventTime(evt); ok {
		return j.check(s, now)
	}
	return s, nil, nil
}

func (j JumpCooldown) ProcessTimer(s JumpCooldownState, now time.Time) (JumpCooldownState, []*events.ProjectedEvent, error) {
	return j.check(s, now)
}

func (j JumpCooldown) check(s JumpCooldownState, now time.Time) (JumpCooldownState, []*events.ProjectedEvent, error) {
	if s.CooldownUntil == "" {
		return s, nil, nil
	}
	until, err := events.ParseTimestamp(s.CooldownUntil)
	if err != nil {
		s.CooldownUntil = ""
		s.Ready = true
		return s, nil, nil
	}
	if now.Before(until) {
		return s, nil, nil
	}
	s.CooldownUntil = ""
	s.Ready = true
	return s, emit("JumpCooldownComplete"), nil
}
