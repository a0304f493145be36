package projection

import (
	"github.com/npratt/wingman/internal/events"
)

// LocationState is where the commander currently is.
type LocationState struct {
	StarSystem         string    `json:"star_system"`
	SystemAddress      int64     `json:"system_address,omitempty"`
	StarPos            []float64 `json:"star_pos"`
	Star               string    `json:"star,omitempty"`
	Planet             string    `json:"planet,omitempty"`
	PlanetaryRing      string    `json:"planetary_ring,omitempty"`
	StellarRing        string    `json:"stellar_ring,omitempty"`
	Station            string    `json:"station,omitempty"`
	AsteroidCluster    string    `json:"asteroid_cluster,omitempty"`
	Docked             bool      `json:"docked"`
	Landed             bool      `json:"landed"`
	NearestDestination string    `json:"nearest_destination,omitempty"`
}

// setBody records body under the field named by the journal's BodyType.
func (s *LocationState) setBody(bodyType, body string) {
	switch bodyType {
	case "Star":
		s.Star = body
	case "Planet":
		s.Planet = body
	case "PlanetaryRing":
		s.PlanetaryRing = body
	case "StellarRing":
		s.StellarRing = body
	case "Station":
		s.Station = body
	case "AsteroidCluster":
		s.AsteroidCluster = body
	}
}

// Location tracks the current system, body and station.
type Location struct{}

func (Location) DefaultState() LocationState {
	return LocationState{
		StarSystem: "Unknown",
		StarPos:    []float64{0, 0, 0},
	}
}

func (l Location) Process(s LocationState, evt events.Event) (LocationState, []*events.ProjectedEvent, error) {
	name, c, ok := gameEvent(evt)
	if !ok {
		return s, nil, nil
	}

	switch name {
	case "Location":
		// A Location entry is a complete fix; nothing carries over.
		s = l.DefaultState()
		s.StarSystem = strOr(c, "StarSystem", "Unknown")
		if pos := floats(c, "StarPos"); len(pos) > 0 {
			s.StarPos = pos
		}
		if addr, ok := number(c, "SystemAddress"); ok {
			s.SystemAddress = int64(addr)
		}
		if station := str(c, "StationName"); station != "" {
			s.Station = station
			s.Docked = boolean(c, "Docked")
		}
		s.setBody(str(c, "BodyType"), strOr(c, "Body", "Unknown"))

	case "SupercruiseEntry":
		s.StarSystem = strOr(c, "StarSystem", "Unknown")

	case "SupercruiseExit":
		s.StarSystem = strOr(c, "StarSystem", "Unknown")
		s.setBody(str(c, "BodyType"), strOr(c, "Body", "Unknown"))

	case "FSDJump":
		s.StarSystem = strOr(c, "StarSystem", "Unknown")
		s.StarPos = floats(c, "StarPos")
		if len(s.StarPos) == 0 {
			s.StarPos = []float64{0, 0, 0}
		}
		s.SystemAddress = 0
		if addr, ok := number(c, "SystemAddress"); ok {
			s.SystemAddress = int64(addr)
		}
		s.Star, s.Planet, s.Station = "", "", ""
		s.PlanetaryRing, s.StellarRing, s.AsteroidCluster = "", "", ""
		s.setBody(str(c, "BodyType"), strOr(c, "Body", "Unknown"))

	case "Docked":
		s.Docked = true
		s.Station = strOr(c, "StationName", "Unknown")

	case "Undocked":
		s.Docked = false

	case "Touchdown":
		s.Landed = true
		s.NearestDestination = strOr(c, "NearestDestination", "Unknown")

	case "Liftoff":
		s.Landed = false
		s.NearestDestination = ""

	case "ApproachSettlement":
		s.Station = strOr(c, "Name", "Unknown")
		s.Planet = strOr(c, "BodyName", "Unknown")

	case "ApproachBody":
		s.Planet = strOr(c, "Body", "Unknown")

	case "LeaveBody":
		s.Station = ""
		s.Planet = ""
	}
	return s, nil, nil
}
