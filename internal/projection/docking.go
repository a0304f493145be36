package projection

import (
	"slices"

	"github.com/npratt/wingman/internal/events"
)

// Docking computer states.
const (
	DockingComputerDeactivated = "deactivated"
	DockingComputerActivated   = "activated"
	DockingComputerAutoDocking = "auto-docking"
)

var dockingEvents = []string{
	"Docked",
	"Undocked",
	"DockingGranted",
	"DockingRequested",
	"DockingCancelled",
	"DockingDenied",
	"DockingTimeout",
}

// Large stations whose undocking the docking computer handles.
var autoUndockStations = []string{"Coriolis", "Orbis", "Ocellus"}

// DockingStateData tracks docking status and the docking computer.
type DockingStateData struct {
	Docked               bool   `json:"docked"`
	StationName          string `json:"station_name,omitempty"`
	StationType          string `json:"station_type"`
	LastEventType        string `json:"last_event_type"`
	DockingComputerState string `json:"docking_computer_state"`
	Timestamp            string `json:"timestamp"`
}

// DockingState follows docking journal entries and the DockingComputer
// music cue to tell when the docking computer takes over.
type DockingState struct{}

func (DockingState) DefaultState() DockingStateData {
	return DockingStateData{
		StationType:          "Unknown",
		LastEventType:        "Unknown",
		DockingComputerState: DockingComputerDeactivated,
		Timestamp:            "1970-01-01T00:00:00Z",
	}
}

func (DockingState) Process(s DockingStateData, evt events.Event) (DockingStateData, []*events.ProjectedEvent, error) {
	name, content, ok := gameEvent(evt)
	if !ok {
		return s, nil, nil
	}

	switch {
	case slices.Contains(dockingEvents, name):
		s.DockingComputerState = DockingComputerDeactivated
		s.StationType = strOr(content, "StationType", "Unknown")
		s.LastEventType = name
		if station := str(content, "StationName"); station != "" {
			s.StationName = station
		}
		if ts := str(content, "timestamp"); ts != "" {
			s.Timestamp = ts
		}
		switch name {
		case "Docked":
			s.Docked = true
		case "Undocked":
			s.Docked = false
		}
		return s, nil, nil

	case name == "Location":
		s.Docked = boolean(content, "Docked")
		if s.Docked {
			s.StationName = str(content, "StationName")
			s.StationType = strOr(content, "StationType", "Unknown")
		}
		return s, nil, nil

	case name == "Music":
		if str(content, "MusicTrack") == "DockingComputer" {
			s.DockingComputerState = DockingComputerActivated
			switch {
			case s.LastEventType == "DockingGranted":
				s.DockingComputerState = DockingComputerAutoDocking
				return s, emit("DockingComputerDocking"), nil
			case s.LastEventType == "Undocked" && slices.Contains(autoUndockStations, s.StationType):
				s.DockingComputerState = DockingComputerAutoDocking
				return s, emit("DockingComputerUndocking"), nil
			}
			return s, nil, nil
		}
		if s.DockingComputerState == DockingComputerAutoDocking {
			s.DockingComputerState = DockingComputerDeactivated
			return s, emit("DockingComputerDeactivated"), nil
		}
	}
	return s, nil, nil
}
