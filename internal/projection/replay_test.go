package projection

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"

	"github.com/npratt/wingman/internal/events"
)

var journalSamples = []map[string]any{
	{"event": "Docked", "StationName": "Jameson Memorial", "StationType": "Orbis"},
	{"event": "Undocked", "StationName": "Jameson Memorial", "StationType": "Orbis"},
	{"event": "DockingGranted", "StationType": "Coriolis"},
	{"event": "Music", "MusicTrack": "DockingComputer"},
	{"event": "Music", "MusicTrack": "Combat_Dogfight"},
	{"event": "Music", "MusicTrack": "Exploration"},
	{"event": "FSDJump", "StarSystem": "Shinrarta Dezhra", "StarPos": []any{55.7, 17.6, 27.2}, "SystemAddress": float64(3932277478106)},
	{"event": "StartJump", "JumpType": "Hyperspace"},
	{"event": "SupercruiseExit", "StarSystem": "Sol", "BodyType": "Planet", "Body": "Earth"},
	{"event": "Touchdown", "NearestDestination": "Base"},
	{"event": "Liftoff"},
}

// randomEvents builds a reproducible event sequence with increasing
// timestamps.
func randomEvents(seed int64, n int) []events.Event {
	r := rand.New(rand.NewSource(seed))
	out := make([]events.Event, 0, n)
	for i := 0; i < n; i++ {
		ts := fmt.Sprintf("2024-01-01T10:%02d:%02dZ", i/60, i%60)
		var e events.Event
		switch r.Intn(4) {
		case 0:
			c := events.NewConversationEvent(events.KindUser, "hi")
			c.Timestamp = ts
			e = c
		case 1:
			s := events.NewStatusEvent(map[string]any{"event": "Status", "flags": map[string]any{"Docked": r.Intn(2) == 0}})
			s.Timestamp = ts
			e = s
		default:
			content := map[string]any{"timestamp": ts}
			for k, v := range journalSamples[r.Intn(len(journalSamples))] {
				content[k] = v
			}
			e = events.NewGameEvent(content, false)
		}
		e.Base().ProcessedAt = float64(i + 1)
		out = append(out, e)
	}
	return out
}

// fold feeds evts through all projections, dispatching projected events to
// every projection right after their trigger.
func fold(t *testing.T, ps []Projection, states []any, evts []events.Event) []any {
	t.Helper()
	var dispatch func(e events.Event, depth int)
	dispatch = func(e events.Event, depth int) {
		if depth > 8 {
			t.Fatal("projected event recursion too deep")
		}
		var derived []*events.ProjectedEvent
		for i, p := range ps {
			next, out, err := p.Process(states[i], e)
			if err != nil {
				t.Fatalf("%s: %v", p.Name(), err)
			}
			states[i] = next
			derived = append(derived, out...)
		}
		for _, d := range derived {
			d.ProcessedAt = e.Base().ProcessedAt
			d.Timestamp = e.Base().Timestamp
			dispatch(d, depth+1)
		}
	}
	for _, e := range evts {
		dispatch(e, 0)
	}
	return states
}

func defaultStates(ps []Projection) []any {
	states := make([]any, len(ps))
	for i, p := range ps {
		states[i] = p.DefaultState()
	}
	return states
}

func encodeAll(t *testing.T, ps []Projection, states []any) [][]byte {
	t.Helper()
	out := make([][]byte, len(ps))
	for i, p := range ps {
		data, err := p.Encode(states[i])
		if err != nil {
			t.Fatalf("encode %s: %v", p.Name(), err)
		}
		out[i] = data
	}
	return out
}

func TestReplayDeterminism(t *testing.T) {
	ps := Defaults(testProjectionsConfig())

	for seed := int64(1); seed <= 20; seed++ {
		evts := randomEvents(seed, 120)

		first := encodeAll(t, ps, fold(t, ps, defaultStates(ps), evts))
		second := encodeAll(t, ps, fold(t, ps, defaultStates(ps), randomEvents(seed, 120)))

		for i := range ps {
			if !bytes.Equal(first[i], second[i]) {
				t.Errorf("seed %d: %s differs between runs:\n%s\n%s", seed, ps[i].Name(), first[i], second[i])
			}
		}
	}
}

func TestSnapshotResumeMatchesContinuous(t *testing.T) {
	ps := Defaults(testProjectionsConfig())
	evts := randomEvents(42, 150)
	want := encodeAll(t, ps, fold(t, ps, defaultStates(ps), randomEvents(42, 150)))

	for _, split := range []int{0, 1, 37, 75, 149, 150} {
		t.Run(fmt.Sprintf("split %d", split), func(t *testing.T) {
			states := fold(t, ps, defaultStates(ps), evts[:split])

			// Persist and reload every state as a restart would.
			for i, p := range ps {
				data, err := p.Encode(states[i])
				if err != nil {
					t.Fatalf("encode: %v", err)
				}
				if states[i], err = p.Decode(data); err != nil {
					t.Fatalf("decode: %v", err)
				}
			}

			got := encodeAll(t, ps, fold(t, ps, states, evts[split:]))
			for i := range ps {
				if !bytes.Equal(got[i], want[i]) {
					t.Errorf("%s differs after resume:\n%s\n%s", ps[i].Name(), got[i], want[i])
				}
			}
		})
	}
}
