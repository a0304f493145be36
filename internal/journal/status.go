package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/npratt/wingman/internal/config"
)

// Flag names of Status.json "Flags", in bit order.
var shipFlagNames = []string{
	"Docked", "Landed", "LandingGearDown", "ShieldsUp",
	"Supercruise", "FlightAssistOff", "HardpointsDeployed", "InWing",
	"LightsOn", "CargoScoopDeployed", "SilentRunning", "ScoopingFuel",
	"SrvHandbrake", "SrvUsingTurretView", "SrvTurretRetracted", "SrvDriveAssist",
	"FsdMassLocked", "FsdCharging", "FsdCooldown", "LowFuel",
	"OverHeating", "HasLatLong", "InDanger", "BeingInterdicted",
	"InMainShip", "InFighter", "InSRV", "HudInAnalysisMode",
	"NightVision", "AltitudeFromAverageRadius", "FsdJump", "SrvHighBeam",
}

// Flag names of Status.json "Flags2", in bit order.
var odysseyFlagNames = []string{
	"OnFoot", "InTaxi", "InMultiCrew", "OnFootInStation",
	"OnFootOnPlanet", "AimDownSight", "LowOxygen", "LowHealth",
	"Cold", "Hot", "VeryCold", "VeryHot",
	"GlideMode", "OnFootInHangar", "OnFootSocialSpace", "OnFootExterior",
	"BreathableAtmosphere", "TelepresenceMulticrew", "PhysicalMulticrew", "FsdHyperdriveCharging",
}

// GUI focus names indexed by the Status.json "GuiFocus" value.
var guiFocusNames = []string{
	"NoFocus", "InternalPanel", "ExternalPanel", "CommsPanel",
	"RolePanel", "StationServices", "GalaxyMap", "SystemMap",
	"Orrery", "FSS", "SAA", "Codex",
}

// Status.json fields copied through unchanged.
var passthroughFields = []string{
	"timestamp", "FireGroup", "Fuel", "Cargo", "LegalState",
	"Latitude", "Altitude", "Longitude", "Heading", "BodyName",
	"PlanetRadius", "Balance", "Destination", "Oxygen", "Health",
	"Temperature", "SelectedWeapon", "Gravity",
}

// flagTransition names the events emitted when a flag is cleared or set.
type flagTransition struct {
	flag    string
	cleared string
	set     string
}

var shipTransitions = []flagTransition{
	{"LandingGearDown", "LandingGearUp", "LandingGearDown"},
	{"FlightAssistOff", "FlightAssistOn", "FlightAssistOff"},
	{"HardpointsDeployed", "HardpointsRetracted", "HardpointsDeployed"},
	{"LightsOn", "LightsOff", "LightsOn"},
	{"CargoScoopDeployed", "CargoScoopRetracted", "CargoScoopDeployed"},
	{"SilentRunning", "SilentRunningOff", "SilentRunningOn"},
	{"ScoopingFuel", "FuelScoopEnded", "FuelScoopStarted"},
	{"SrvHandbrake", "SrvHandbrakeOff", "SrvHandbrakeOn"},
	{"SrvUsingTurretView", "SrvTurretViewDisconnected", "SrvTurretViewConnected"},
	{"SrvDriveAssist", "SrvDriveAssistOff", "SrvDriveAssistOn"},
	{"FsdMassLocked", "FsdMassLockEscaped", "FsdMassLocked"},
	{"LowFuel", "LowFuelWarningCleared", "LowFuelWarning"},
	{"InDanger", "OutofDanger", "InDanger"},
	{"NightVision", "NightVisionOff", "NightVisionOn"},
}

var odysseyTransitions = []flagTransition{
	{"LowOxygen", "LowOxygenWarningCleared", "LowOxygenWarning"},
	{"LowHealth", "LowHealthWarningCleared", "LowHealthWarning"},
	{"GlideMode", "GlideModeExited", "GlideModeEntered"},
	{"BreathableAtmosphere", "BreathableAtmosphereExited", "BreathableAtmosphereEntered"},
}

// DecodeStatus converts a raw Status.json document into a "Status" event
// body: bitfields become named flags, pips are halved into whole pips and
// the GUI focus index becomes its name. Absent fields stay absent.
func DecodeStatus(raw map[string]any) map[string]any {
	status := map[string]any{
		"event": "Status",
		"flags": decodeFlags(number(raw["Flags"]), shipFlagNames),
	}
	if v, ok := raw["Flags2"]; ok {
		status["flags2"] = decodeFlags(number(v), odysseyFlagNames)
	}
	if pips, ok := raw["Pips"].([]any); ok && len(pips) == 3 {
		status["Pips"] = map[string]any{
			"system":  number(pips[0]) / 2,
			"engine":  number(pips[1]) / 2,
			"weapons": number(pips[2]) / 2,
		}
	}
	if v, ok := raw["GuiFocus"]; ok {
		status["GuiFocus"] = guiFocusName(int(number(v)))
	}
	for _, key := range passthroughFields {
		if v, ok := raw[key]; ok && v != nil {
			status[key] = v
		}
	}
	return status
}

// StatusDeltas returns the change events between two decoded snapshots, in
// a fixed order. Odyssey transitions need flags2 on both sides.
func StatusDeltas(prev, next map[string]any) []map[string]any {
	var deltas []map[string]any

	appendFlags := func(key string, transitions []flagTransition) {
		before, ok1 := prev[key].(map[string]any)
		after, ok2 := next[key].(map[string]any)
		if !ok1 || !ok2 {
			return
		}
		for _, t := range transitions {
			was, _ := before[t.flag].(bool)
			is, _ := after[t.flag].(bool)
			switch {
			case was && !is:
				deltas = append(deltas, map[string]any{"event": t.cleared})
			case !was && is:
				deltas = append(deltas, map[string]any{"event": t.set})
			}
		}
	}
	appendFlags("flags", shipTransitions)
	appendFlags("flags2", odysseyTransitions)

	appendChange := func(field, event string) {
		before, _ := prev[field].(string)
		after, _ := next[field].(string)
		if before != "" && before != after {
			deltas = append(deltas, map[string]any{"event": event, field: next[field]})
		}
	}
	appendChange("LegalState", "LegalStateChanged")
	appendChange("SelectedWeapon", "WeaponSelected")

	return deltas
}

func decodeFlags(value float64, names []string) map[string]any {
	bits := uint64(value)
	flags := make(map[string]any, len(names))
	for i, name := range names {
		flags[name] = bits&(1<<uint(i)) != 0
	}
	return flags
}

func guiFocusName(i int) string {
	if i < 0 || i >= len(guiFocusNames) {
		return fmt.Sprintf("Unknown(%d)", i)
	}
	return guiFocusNames[i]
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// sameStatus compares snapshots ignoring the timestamp, which the game
// rewrites on every save.
func sameStatus(a, b map[string]any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	a, b = maps.Clone(a), maps.Clone(b)
	delete(a, "timestamp")
	delete(b, "timestamp")
	return reflect.DeepEqual(a, b)
}

// StatusWatcher monitors Status.json and feeds a "Status" snapshot plus
// change events to the ingestor whenever the file's content changes.
type StatusWatcher struct {
	lifecycle

	path     string
	ingest   Ingestor
	logger   *slog.Logger
	warnings rateLimiter

	// readMu guards last and lastRaw.
	readMu  sync.Mutex
	last    map[string]any
	lastRaw []byte
}

// NewStatusWatcher creates a StatusWatcher for cfg.StatusPath().
func NewStatusWatcher(cfg config.JournalConfig, ingest Ingestor, logger *slog.Logger) *StatusWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusWatcher{
		path:   cfg.StatusPath(),
		ingest: ingest,
		logger: logger.With("component", "status"),
	}
}

// Start begins watching in a background goroutine. The current snapshot, if
// any, is delivered without change events.
func (s *StatusWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("status directory: %w", err)
	}
	target := filepath.Base(s.path)
	return s.start(ctx, func() {
		s.logger.Info("started watching status file", "path", s.path)
		dirWatch{
			dir:      dir,
			match:    func(name string) bool { return filepath.Base(name) == target },
			ready:    s.read,
			onChange: s.read,
			warn:     s.warn,
		}.run(s.context())
	})
}

// Current returns the last decoded snapshot, or nil before the first read.
func (s *StatusWatcher) Current() map[string]any {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	if s.last == nil {
		return nil
	}
	return maps.Clone(s.last)
}

func (s *StatusWatcher) read() {
	if s.stopped() {
		return
	}

	s.readMu.Lock()
	defer s.readMu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.warn(fmt.Sprintf("read status file: %v", err))
		}
		return
	}
	// The game truncates before writing; an empty read is picked up again.
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(data, s.lastRaw) {
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Debug("status file not ready", "error", err)
		return
	}
	s.lastRaw = data

	next := DecodeStatus(raw)
	if sameStatus(s.last, next) {
		return
	}

	prev := s.last
	s.last = next
	s.ingest.AddStatusEvent(maps.Clone(next))
	if prev == nil {
		return
	}
	for _, delta := range StatusDeltas(prev, next) {
		s.ingest.AddStatusEvent(delta)
	}
}

func (s *StatusWatcher) warn(msg string) {
	if s.warnings.allow() {
		s.logger.Warn(msg)
	}
}
