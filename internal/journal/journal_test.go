package journal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/npratt/wingman/internal/testutil"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    string
		wantNil bool
		wantErr bool
	}{
		{name: "entry", line: `{"timestamp":"2024-05-01T18:00:00Z","event":"Docked"}`, want: "Docked"},
		{name: "trailing newline", line: "{\"event\":\"Undocked\"}\r\n", want: "Undocked"},
		{name: "empty", line: "", wantNil: true},
		{name: "whitespace", line: "  \n", wantNil: true},
		{name: "invalid json", line: `{"event":`, wantErr: true},
		{name: "no event", line: `{"timestamp":"2024-05-01T18:00:00Z"}`, wantErr: true},
		{name: "non-string event", line: `{"event":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLine([]byte(tt.line))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if got["event"] != tt.want {
				t.Errorf("event = %v, want %s", got["event"], tt.want)
			}
		})
	}
}

func TestParseLine_MissingEventName(t *testing.T) {
	_, err := ParseLine([]byte(`{"a":1}`))
	if !errors.Is(err, ErrMissingEventName) {
		t.Errorf("expected ErrMissingEventName, got %v", err)
	}
}

func TestIsJournalFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Journal.2024-05-01T180000.01.log", true},
		{filepath.Join("saved", "Journal.240501180000.01.log"), true},
		{"Status.json", false},
		{"Journal.2024-05-01T180000.01.log.tmp", false},
		{"JournalAlpha.log", false},
	}
	for _, tt := range tests {
		if got := IsJournalFile(tt.name); got != tt.want {
			t.Errorf("IsJournalFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLatestJournal(t *testing.T) {
	dir := t.TempDir()
	older := testutil.WriteFile(t, dir, "Journal.2024-05-01T170000.01.log", "")
	newer := testutil.WriteFile(t, dir, "Journal.2024-05-01T180000.01.log", "")
	testutil.WriteFile(t, dir, "Status.json", "{}")

	base := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, base, base.Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(newer, base, base); err != nil {
		t.Fatal(err)
	}

	got, err := LatestJournal(dir)
	if err != nil {
		t.Fatalf("LatestJournal failed: %v", err)
	}
	if got != older {
		t.Errorf("expected most recently modified %s, got %s", older, got)
	}
}

func TestLatestJournal_TieBrokenByName(t *testing.T) {
	dir := t.TempDir()
	a := testutil.WriteFile(t, dir, "Journal.2024-05-01T170000.01.log", "")
	b := testutil.WriteFile(t, dir, "Journal.2024-05-01T180000.01.log", "")

	ts := time.Now().Add(-time.Minute)
	for _, p := range []string{a, b} {
		if err := os.Chtimes(p, ts, ts); err != nil {
			t.Fatal(err)
		}
	}

	got, err := LatestJournal(dir)
	if err != nil {
		t.Fatalf("LatestJournal failed: %v", err)
	}
	if got != b {
		t.Errorf("expected %s, got %s", b, got)
	}
}

func TestLatestJournal_NoJournals(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "Status.json", "{}")

	_, err := LatestJournal(dir)
	if !errors.Is(err, ErrNoJournal) {
		t.Errorf("expected ErrNoJournal, got %v", err)
	}
}

func TestLatestJournal_MissingDir(t *testing.T) {
	_, err := LatestJournal(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
