package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/npratt/wingman/internal/config"
)

// ErrAlreadyRunning is returned when another engine holds the lock on the
// same event database.
var ErrAlreadyRunning = errors.New("engine already running")

// lockSuffix names the lock file kept next to the database when no pid path
// is configured.
const lockSuffix = ".lock"

// Owner is the record an engine writes into its instance lock.
type Owner struct {
	PID       int       `json:"pid"`
	Database  string    `json:"database"`
	Socket    string    `json:"socket"`
	Ephemeral bool      `json:"ephemeral,omitempty"`
	Started   time.Time `json:"started"`
}

// LockedError reports the engine that already owns a database.
type LockedError struct {
	Path string
	// Owner is nil when the holder's record could not be read.
	Owner *Owner
}

func (e *LockedError) Error() string {
	if e.Owner == nil {
		return fmt.Sprintf("%v: %s is locked", ErrAlreadyRunning, e.Path)
	}
	return fmt.Sprintf("%v: pid %d owns %s (socket %s)", ErrAlreadyRunning, e.Owner.PID, e.Owner.Database, e.Owner.Socket)
}

func (e *LockedError) Unwrap() error { return ErrAlreadyRunning }

// LockPath returns the lock file guarding the engine for paths: the
// configured pid path, or the database path with a .lock suffix.
func LockPath(paths config.PathsConfig) string {
	if paths.PID != "" {
		return paths.PID
	}
	return paths.Database + lockSuffix
}

// InstanceLock is an flock held on LockPath for the life of an engine. Two
// engines can never write to the same database or serve the same socket.
// The kernel drops the lock when its holder dies, so a crashed engine never
// blocks the next start.
type InstanceLock struct {
	path  string
	file  *os.File
	owner Owner
}

// AcquireLock takes the instance lock for paths. When another engine holds
// it the error is a *LockedError naming that engine.
func AcquireLock(paths config.PathsConfig, ephemeral bool) (*InstanceLock, error) {
	path := LockPath(paths)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			owner, _ := ReadOwner(path)
			return nil, &LockedError{Path: path, Owner: owner}
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	l := &InstanceLock{
		path: path,
		file: file,
		owner: Owner{
			PID:       os.Getpid(),
			Database:  paths.Database,
			Socket:    paths.Socket,
			Ephemeral: ephemeral,
			Started:   time.Now().UTC(),
		},
	}
	if err := l.writeOwner(); err != nil {
		l.unlock()
		return nil, err
	}
	return l, nil
}

// writeOwner replaces the lock file contents with l's owner record. A
// previous holder's record is overwritten.
func (l *InstanceLock) writeOwner() error {
	data, err := json.Marshal(l.owner)
	if err != nil {
		return fmt.Errorf("encode lock owner: %w", err)
	}
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock: %w", err)
	}
	if _, err := l.file.WriteAt(append(data, '\n'), 0); err != nil {
		return fmt.Errorf("write lock: %w", err)
	}
	return l.file.Sync()
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string { return l.path }

// Owner returns the record written into the lock.
func (l *InstanceLock) Owner() Owner { return l.owner }

// Release drops the lock and removes the lock file. It is safe to call more
// than once.
func (l *InstanceLock) Release() error {
	if l.file == nil {
		return nil
	}
	// Removed before unlocking so the next holder starts from a fresh file.
	err := os.Remove(l.path)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	l.unlock()
	return err
}

func (l *InstanceLock) unlock() {
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}

// ReadOwner reads the owner record from the lock file at path.
func ReadOwner(path string) (*Owner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}
	var o Owner
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("decode lock %s: %w", path, err)
	}
	return &o, nil
}

// lockHeld reports whether some process holds the lock at path. A missing
// file means nobody does.
func lockHeld(path string) bool {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return false
	}
	defer func() { _ = file.Close() }()
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return errors.Is(err, syscall.EWOULDBLOCK)
	}
	_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
	return false
}
