package projection

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/npratt/wingman/internal/events"
)

// StatusFlags are the ship and SRV flags decoded from Status.json "Flags".
type StatusFlags struct {
	Docked                    bool
	Landed                    bool
	LandingGearDown           bool
	ShieldsUp                 bool
	Supercruise               bool
	FlightAssistOff           bool
	HardpointsDeployed        bool
	InWing                    bool
	LightsOn                  bool
	CargoScoopDeployed        bool
	SilentRunning             bool
	ScoopingFuel              bool
	SrvHandbrake              bool
	SrvUsingTurretView        bool
	SrvTurretRetracted        bool
	SrvDriveAssist            bool
	FsdMassLocked             bool
	FsdCharging               bool
	FsdCooldown               bool
	LowFuel                   bool
	OverHeating               bool
	HasLatLong                bool
	InDanger                  bool
	BeingInterdicted          bool
	InMainShip                bool
	InFighter                 bool
	InSRV                     bool
	HudInAnalysisMode         bool
	NightVision               bool
	AltitudeFromAverageRadius bool
	FsdJump                   bool
	SrvHighBeam               bool
}

// OdysseyFlags are the on-foot flags decoded from Status.json "Flags2".
type OdysseyFlags struct {
	OnFoot                bool
	InTaxi                bool
	InMultiCrew           bool
	OnFootInStation       bool
	OnFootOnPlanet        bool
	AimDownSight          bool
	LowOxygen             bool
	LowHealth             bool
	Cold                  bool
	Hot                   bool
	VeryCold              bool
	VeryHot               bool
	GlideMode             bool
	OnFootInHangar        bool
	OnFootSocialSpace     bool
	OnFootExterior        bool
	BreathableAtmosphere  bool
	TelepresenceMulticrew bool
	PhysicalMulticrew     bool
	FsdHyperdriveCharging bool
}

// Pips is the power distribution, in whole pips.
type Pips struct {
	System  float64 `json:"system" mapstructure:"system"`
	Engine  float64 `json:"engine" mapstructure:"engine"`
	Weapons float64 `json:"weapons" mapstructure:"weapons"`
}

// Fuel is the current fuel level in tons.
type Fuel struct {
	FuelMain      float64
	FuelReservoir float64
}

// Destination is the current navigation target.
type Destination struct {
	System int64
	Body   int64
	Name   string
}

// StatusState mirrors the last Status.json snapshot. Field names follow the
// game's own naming.
type StatusState struct {
	Flags          StatusFlags   `json:"flags" mapstructure:"flags"`
	Flags2         *OdysseyFlags `json:"flags2,omitempty" mapstructure:"flags2"`
	Pips           *Pips         `json:",omitempty"`
	FireGroup      *int          `json:",omitempty"`
	GuiFocus       string        `json:",omitempty"`
	Fuel           *Fuel         `json:",omitempty"`
	Cargo          *float64      `json:",omitempty"`
	LegalState     string        `json:",omitempty"`
	Latitude       *float64      `json:",omitempty"`
	Altitude       *float64      `json:",omitempty"`
	Longitude      *float64      `json:",omitempty"`
	Heading        *float64      `json:",omitempty"`
	BodyName       string        `json:",omitempty"`
	PlanetRadius   *float64      `json:",omitempty"`
	Balance        *float64      `json:",omitempty"`
	Destination    *Destination  `json:",omitempty"`
	Oxygen         *float64      `json:",omitempty"`
	Health         *float64      `json:",omitempty"`
	Temperature    *float64      `json:",omitempty"`
	SelectedWeapon string        `json:",omitempty"`
	Gravity        *float64      `json:",omitempty"`
}

// CurrentStatus replaces its state with every decoded "Status" snapshot.
type CurrentStatus struct{}

func (CurrentStatus) DefaultState() StatusState {
	return StatusState{}
}

func (CurrentStatus) Process(s StatusState, evt events.Event) (StatusState, []*events.ProjectedEvent, error) {
	name, status, ok := statusEvent(evt)
	if !ok || name != "Status" {
		return s, nil, nil
	}

	var next StatusState
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &next,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return s, nil, err
	}
	if err := dec.Decode(status); err != nil {
		return s, nil, fmt.Errorf("decode status: %w", err)
	}
	return next, nil, nil
}
