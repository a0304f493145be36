package testutil

import (
	"encoding/json"
	"strings"
	"time"
)

// JournalEntry builds a journal entry map named name stamped at ts.
func JournalEntry(name string, ts time.Time, fields map[string]any) map[string]any {
	entry := map[string]any{
		"event":     name,
		"timestamp": ts.UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		entry[k] = v
	}
	return entry
}

// JournalLines renders entries as newline-terminated JSON lines.
func JournalLines(entries ...map[string]any) string {
	var sb strings.Builder
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			panic(err)
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// SampleJournal is a short session: login, a jump and a docking.
var SampleJournal = `{ "timestamp":"2024-05-01T18:00:00Z", "event":"Fileheader", "part":1, "language":"English/UK", "gameversion":"4.0.0.1800" }
{ "timestamp":"2024-05-01T18:00:05Z", "event":"LoadGame", "Commander":"Jameson", "Ship":"cobramkiii" }
{ "timestamp":"2024-05-01T18:00:10Z", "event":"Location", "StarSystem":"Sol", "SystemAddress":10477373803, "StarPos":[0.0,0.0,0.0], "Docked":true, "StationName":"Galileo", "StationType":"Ocellus" }
{ "timestamp":"2024-05-01T18:01:00Z", "event":"Undocked", "StationName":"Galileo", "StationType":"Ocellus" }
{ "timestamp":"2024-05-01T18:03:00Z", "event":"FSDJump", "StarSystem":"Alpha Centauri", "SystemAddress":1458309042514, "StarPos":[3.03125,-0.09375,3.15625] }
{ "timestamp":"2024-05-01T18:06:00Z", "event":"Docked", "StationName":"Hutton Orbital", "StationType":"Outpost", "StarSystem":"Alpha Centauri" }
`

// SampleStatus is a Status.json snapshot: docked, landing gear down, shields up.
var SampleStatus = `{ "timestamp":"2024-05-01T18:06:01Z", "event":"Status", "Flags":16842765, "Pips":[4,8,0], "FireGroup":0, "GuiFocus":0, "Fuel":{ "FuelMain":16.0, "FuelReservoir":0.63 }, "Cargo":0.0, "LegalState":"Clean", "Balance":1000 }
`
