package projection

import (
	"strings"

	"github.com/npratt/wingman/internal/events"
)

// CombatState reports whether combat music is playing.
type CombatState struct {
	InCombat bool `json:"in_combat"`
}

// InCombat watches the music track: combat tracks start with "combat".
type InCombat struct{}

func (InCombat) DefaultState() CombatState {
	return CombatState{}
}

func (InCombat) Process(s CombatState, evt events.Event) (CombatState, []*events.ProjectedEvent, error) {
	name, content, ok := gameEvent(evt)
	if !ok || name != "Music" {
		return s, nil, nil
	}
	track := str(content, "MusicTrack")
	if track == "" {
		return s, nil, nil
	}

	combat := strings.HasPrefix(strings.ToLower(track), "combat")
	switch {
	case s.InCombat && !combat:
		s.InCombat = false
		return s, emit("CombatExited"), nil
	case !s.InCombat && combat:
		s.InCombat = true
		return s, emit("CombatEntered"), nil
	}
	return s, nil, nil
}
