package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/npratt/wingman/internal/config"
)

// ErrNoDaemon is returned by FindDaemonInfo when no engine is serving the
// project.
var ErrNoDaemon = errors.New("no running engine")

// ErrPathConflict is returned by ResolvePaths when two roles share a file.
var ErrPathConflict = errors.New("paths overlap")

const (
	daemonInfoFile = "daemon.json"
	socketFile     = "wingman.sock"
)

// DaemonInfo tells CLI commands where a running engine keeps its socket and
// files. It is written to .wingman/daemon.json at the project root.
type DaemonInfo struct {
	PID        int       `json:"pid"`
	SocketPath string    `json:"socket_path"`
	LockPath   string    `json:"lock_path"`
	Database   string    `json:"database"`
	LogPath    string    `json:"log_path"`
	StatesPath string    `json:"states_path"`
	JournalDir string    `json:"journal_dir,omitempty"`
	Ephemeral  bool      `json:"ephemeral,omitempty"`
	StartTime  time.Time `json:"start_time"`
}

// NewDaemonInfo describes the engine about to run with cfg.
func NewDaemonInfo(cfg *config.Config, ephemeral bool) *DaemonInfo {
	info := &DaemonInfo{
		PID:        os.Getpid(),
		SocketPath: cfg.Paths.Socket,
		LockPath:   LockPath(cfg.Paths),
		Database:   cfg.Paths.Database,
		LogPath:    cfg.Paths.Log,
		StatesPath: cfg.Paths.States,
		Ephemeral:  ephemeral,
		StartTime:  time.Now().UTC(),
	}
	if cfg.Journal.Enabled {
		info.JournalDir = cfg.Journal.Dir
	}
	if ephemeral {
		info.Database = ""
	}
	return info
}

// ResolvePaths makes every path absolute against basePath (the working
// directory when empty). An unset socket lives next to the database and an
// unset pid path becomes the database lock. Two roles pointing at the same
// file is an ErrPathConflict.
func ResolvePaths(paths config.PathsConfig, basePath string) (config.PathsConfig, error) {
	if basePath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return paths, fmt.Errorf("get working directory: %w", err)
		}
		basePath = wd
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(basePath, p)
	}

	out := config.PathsConfig{
		Database: abs(paths.Database),
		Log:      abs(paths.Log),
		States:   abs(paths.States),
		Socket:   abs(paths.Socket),
		PID:      abs(paths.PID),
	}
	if out.Database == "" {
		return paths, errors.New("database path is required")
	}
	if out.Socket == "" {
		out.Socket = filepath.Join(filepath.Dir(out.Database), socketFile)
	}
	if out.PID == "" {
		out.PID = out.Database + lockSuffix
	}

	roles := []struct{ name, path string }{
		{"database", out.Database},
		{"log", out.Log},
		{"states", out.States},
		{"socket", out.Socket},
		{"pid", out.PID},
	}
	seen := make(map[string]string, len(roles))
	for _, r := range roles {
		if r.path == "" {
			continue
		}
		if prev, ok := seen[r.path]; ok {
			return paths, fmt.Errorf("%w: %s and %s both use %s", ErrPathConflict, prev, r.name, r.path)
		}
		seen[r.path] = r.name
	}
	return out, nil
}

// FindProjectRoot walks up from startDir (the working directory when
// empty). The nearest directory holding .wingman wins; failing that the
// nearest holding .git; failing both, startDir itself.
func FindProjectRoot(startDir string) string {
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		startDir = wd
	}
	start, err := filepath.Abs(startDir)
	if err != nil {
		return startDir
	}

	gitRoot := ""
	for dir := start; ; dir = filepath.Dir(dir) {
		if isDir(filepath.Join(dir, config.ProjectConfigDir)) {
			return dir
		}
		if gitRoot == "" && isDir(filepath.Join(dir, ".git")) {
			gitRoot = dir
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	if gitRoot != "" {
		return gitRoot
	}
	return start
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FindDaemonInfo returns the info of the engine serving the project that
// contains startDir. Info left behind by an engine that no longer holds its
// lock is removed and reported as ErrNoDaemon.
func FindDaemonInfo(startDir string) (*DaemonInfo, error) {
	path := DaemonInfoPath(FindProjectRoot(startDir))
	info, err := ReadDaemonInfo(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w (no %s)", ErrNoDaemon, path)
		}
		return nil, err
	}
	if info.LockPath != "" && !lockHeld(info.LockPath) {
		_ = RemoveDaemonInfo(path)
		return nil, fmt.Errorf("%w (pid %d exited)", ErrNoDaemon, info.PID)
	}
	return info, nil
}

// WriteDaemonInfo writes info to path, replacing any previous file in one
// step so readers never see a partial record.
func WriteDaemonInfo(path string, info *DaemonInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal daemon info: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+daemonInfoFile+".*")
	if err != nil {
		return fmt.Errorf("write daemon info: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write daemon info: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write daemon info: %w", err)
	}
	return nil
}

// ReadDaemonInfo reads daemon info from path.
func ReadDaemonInfo(path string) (*DaemonInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read daemon info: %w", err)
	}
	var info DaemonInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode daemon info %s: %w", path, err)
	}
	return &info, nil
}

// RemoveDaemonInfo removes the file at path. A missing file is not an error.
func RemoveDaemonInfo(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove daemon info: %w", err)
	}
	return nil
}

// DaemonInfoPath returns the daemon.json path for a project root.
func DaemonInfoPath(projectRoot string) string {
	return filepath.Join(projectRoot, config.ProjectConfigDir, daemonInfoFile)
}
