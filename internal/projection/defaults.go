package projection

import "github.com/npratt/wingman/internal/config"

// Defaults returns the built-in projections configured from cfg.
func Defaults(cfg config.ProjectionsConfig) []Projection {
	return []Projection{
		New(NameEventCounter, 1, EventCounter{}),
		New(NameLatestEvent, 1, LatestEvent{}),
		New(NameCurrentStatus, 1, CurrentStatus{}),
		New(NameDockingState, 1, DockingState{}),
		New(NameInCombat, 1, InCombat{}),
		New(NameLocation, 1, Location{}),
		New(NameIdle, 1, Idle{Timeout: cfg.IdleTimeout}),
		New(NameJumpCooldown, 1, JumpCooldown{Cooldown: cfg.JumpCooldown}),
	}
}
