package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/npratt/wingman/internal/config"
	"github.com/npratt/wingman/internal/testutil"
)

func TestResolvePaths(t *testing.T) {
	tests := []struct {
		name    string
		paths   config.PathsConfig
		want    config.PathsConfig
		wantErr error
	}{
		{
			name:  "defaults resolved against the project",
			paths: config.Default().Paths,
			want: config.PathsConfig{
				Database: "/game/.wingman/wingman.db",
				Log:      "/game/.wingman/events.jsonl",
				States:   "/game/.wingman/states.json",
				Socket:   "/game/.wingman/wingman.sock",
				PID:      "/game/.wingman/wingman.pid",
			},
		},
		{
			name:  "socket and lock follow the database",
			paths: config.PathsConfig{Database: "/data/cmdr.db", Log: "events.jsonl"},
			want: config.PathsConfig{
				Database: "/data/cmdr.db",
				Log:      "/game/events.jsonl",
				Socket:   "/data/wingman.sock",
				PID:      "/data/cmdr.db.lock",
			},
		},
		{
			name:    "states file over the database",
			paths:   config.PathsConfig{Database: "/data/cmdr.db", States: "/data/cmdr.db"},
			wantErr: ErrPathConflict,
		},
		{
			name:    "relative log collides with absolute states",
			paths:   config.PathsConfig{Database: "db", Log: "out.json", States: "/game/out.json"},
			wantErr: ErrPathConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePaths(tt.paths, "/game")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolvePaths() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolvePaths() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePaths() =\n%+v\nwant\n%+v", got, tt.want)
			}
		})
	}
}

func TestResolvePaths_RequiresDatabase(t *testing.T) {
	if _, err := ResolvePaths(config.PathsConfig{Log: "events.jsonl"}, "/game"); err == nil {
		t.Error("expected an error without a database path")
	}
}

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFindProjectRoot(t *testing.T) {
	tests := []struct {
		name  string
		dirs  []string
		start string
		want  string
	}{
		{"state dir", []string{".wingman", "a/b"}, "a/b", "."},
		{"git only", []string{".git", "a/b"}, "a/b", "."},
		{"state dir beats nearer git", []string{".wingman", "mods/x/.git", "mods/x/src"}, "mods/x/src", "."},
		{"nearest state dir", []string{".wingman", "sub/.wingman", "sub/deep"}, "sub/deep", "sub"},
		{"no marker", []string{"a/b"}, "a/b", "a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			mkdirs(t, root, tt.dirs...)
			got := FindProjectRoot(filepath.Join(root, tt.start))
			if want := filepath.Join(root, tt.want); got != want {
				t.Errorf("FindProjectRoot() = %q, want %q", got, want)
			}
		})
	}
}

func TestNewDaemonInfo(t *testing.T) {
	cfg := config.Default()
	cfg.Paths, _ = ResolvePaths(cfg.Paths, "/game")
	cfg.Journal.Dir = "/saved/games/journal"

	info := NewDaemonInfo(cfg, false)
	if info.PID != os.Getpid() || info.SocketPath != "/game/.wingman/wingman.sock" {
		t.Errorf("info = %+v", info)
	}
	if info.LockPath != "/game/.wingman/wingman.pid" || info.Database != "/game/.wingman/wingman.db" {
		t.Errorf("lock/database = %q/%q", info.LockPath, info.Database)
	}
	if info.JournalDir != "" {
		t.Errorf("journal dir %q recorded while the journal is disabled", info.JournalDir)
	}

	cfg.Journal.Enabled = true
	info = NewDaemonInfo(cfg, true)
	if info.Database != "" || !info.Ephemeral {
		t.Errorf("ephemeral info = %+v, want no database", info)
	}
	if info.JournalDir != cfg.Journal.Dir {
		t.Errorf("journal dir = %q", info.JournalDir)
	}
}

func TestWriteDaemonInfo_Replaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".wingman")
	path := filepath.Join(dir, "daemon.json")

	if err := WriteDaemonInfo(path, &DaemonInfo{PID: 1, SocketPath: "/old.sock"}); err != nil {
		t.Fatalf("WriteDaemonInfo: %v", err)
	}
	if err := WriteDaemonInfo(path, &DaemonInfo{PID: 2, SocketPath: "/new.sock"}); err != nil {
		t.Fatalf("WriteDaemonInfo: %v", err)
	}

	info, err := ReadDaemonInfo(path)
	if err != nil {
		t.Fatalf("ReadDaemonInfo: %v", err)
	}
	if info.PID != 2 || info.SocketPath != "/new.sock" {
		t.Errorf("info = %+v, want the second write", info)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestReadDaemonInfo_Corrupt(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "daemon.json", "{")
	if _, err := ReadDaemonInfo(path); err == nil {
		t.Error("expected a decode error")
	}
}

func TestFindDaemonInfo(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, ".wingman", "logs")
	infoPath := DaemonInfoPath(root)

	if _, err := FindDaemonInfo(root); !errors.Is(err, ErrNoDaemon) {
		t.Fatalf("without daemon.json: error = %v, want ErrNoDaemon", err)
	}

	paths, err := ResolvePaths(config.Default().Paths, root)
	if err != nil {
		t.Fatal(err)
	}
	lock, err := AcquireLock(paths, false)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Paths = paths
	if err := WriteDaemonInfo(infoPath, NewDaemonInfo(cfg, false)); err != nil {
		t.Fatal(err)
	}

	info, err := FindDaemonInfo(filepath.Join(root, "logs"))
	if err != nil {
		t.Fatalf("FindDaemonInfo with a live engine: %v", err)
	}
	if info.SocketPath != paths.Socket {
		t.Errorf("socket = %q, want %q", info.SocketPath, paths.Socket)
	}

	// The engine dies without cleaning up: its lock is gone, its info is not.
	_ = lock.Release()
	if err := WriteDaemonInfo(infoPath, NewDaemonInfo(cfg, false)); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.PID, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := FindDaemonInfo(root); !errors.Is(err, ErrNoDaemon) {
		t.Fatalf("stale info: error = %v, want ErrNoDaemon", err)
	}
	if testutil.FileExists(t, infoPath) {
		t.Error("stale daemon.json not removed")
	}
}

func TestFindDaemonInfo_WithoutLockPath(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, ".wingman")
	if err := WriteDaemonInfo(DaemonInfoPath(root), &DaemonInfo{SocketPath: "/s.sock"}); err != nil {
		t.Fatal(err)
	}
	info, err := FindDaemonInfo(root)
	if err != nil || info.SocketPath != "/s.sock" {
		t.Errorf("FindDaemonInfo() = %+v, %v", info, err)
	}
}

func TestRemoveDaemonInfo_Missing(t *testing.T) {
	if err := RemoveDaemonInfo(filepath.Join(t.TempDir(), "daemon.json")); err != nil {
		t.Errorf("RemoveDaemonInfo() = %v, want nil for a missing file", err)
	}
}

func TestDaemonInfoPath(t *testing.T) {
	if got, want := DaemonInfoPath("/game"), "/game/.wingman/daemon.json"; got != want {
		t.Errorf("DaemonInfoPath() = %q, want %q", got, want)
	}
}
